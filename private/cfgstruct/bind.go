// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package cfgstruct binds annotated config structs to command line flags.
//
// Every exported field becomes a flag named after its dotted, hyphenated
// path, e.g. Worker.MaxDeliveries becomes worker.max-deliveries. Nested
// structs add a path element. Fields are annotated with struct tags:
//
//	help            flag usage
//	default         default for both dev and release
//	devDefault      default when running with dev defaults
//	releaseDefault  default when running with release defaults
//	hidden          "true" hides the flag from usage and saved configs
package cfgstruct

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/pflag"
	"github.com/zeebo/errs"
)

// Error is the error class for binding failures.
var Error = errs.Class("cfgstruct")

const (
	// Dev selects devDefault values.
	Dev = "dev"
	// Release selects releaseDefault values.
	Release = "release"
)

// BindOpt is an option for the Bind method.
type BindOpt func(*bindOptions)

type bindOptions struct {
	prefix   string
	defaults string
}

// Prefix prepends prefix and a dot to every flag name.
func Prefix(prefix string) BindOpt {
	return func(opts *bindOptions) { opts.prefix = prefix + "." }
}

// UseDevDefaults selects devDefault tags.
func UseDevDefaults() BindOpt {
	return func(opts *bindOptions) { opts.defaults = Dev }
}

// UseReleaseDefaults selects releaseDefault tags.
func UseReleaseDefaults() BindOpt {
	return func(opts *bindOptions) { opts.defaults = Release }
}

// Defaults selects the defaults by name, Dev or Release.
func Defaults(name string) BindOpt {
	return func(opts *bindOptions) { opts.defaults = name }
}

// Bind registers a flag for every field of the struct config points to.
// It panics on unsupported field types, config structs are static.
func Bind(flags *pflag.FlagSet, config any, opts ...BindOpt) {
	options := bindOptions{defaults: DefaultsType()}
	for _, opt := range opts {
		opt(&options)
	}

	value := reflect.ValueOf(config)
	if value.Kind() != reflect.Pointer || value.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("cfgstruct: invalid config type %T", config))
	}
	bindStruct(flags, options, options.prefix, value.Elem())
}

func bindStruct(flags *pflag.FlagSet, options bindOptions, prefix string, value reflect.Value) {
	typ := value.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		fieldValue := value.Field(i)
		name := prefix + hyphenate(field.Name)

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			bindStruct(flags, options, name+".", fieldValue)
			continue
		}

		def := defaultValue(field.Tag, options.defaults)
		help := field.Tag.Get("help")
		ptr := fieldValue.Addr().Interface()

		switch ptr := ptr.(type) {
		case *string:
			flags.StringVar(ptr, name, def, help)
		case *bool:
			flags.BoolVar(ptr, name, false, help)
		case *int:
			flags.IntVar(ptr, name, 0, help)
		case *int64:
			flags.Int64Var(ptr, name, 0, help)
		case *uint32:
			flags.Uint32Var(ptr, name, 0, help)
		case *uint64:
			flags.Uint64Var(ptr, name, 0, help)
		case *float64:
			flags.Float64Var(ptr, name, 0, help)
		case *time.Duration:
			flags.DurationVar(ptr, name, 0, help)
		case *[]string:
			flags.StringSliceVar(ptr, name, nil, help)
		default:
			panic(fmt.Sprintf("cfgstruct: unsupported type %s for %s", field.Type, name))
		}

		flag := flags.Lookup(name)
		if def != "" {
			if err := flag.Value.Set(def); err != nil {
				panic(fmt.Sprintf("cfgstruct: invalid default %q for %s: %v", def, name, err))
			}
			flag.DefValue = flag.Value.String()
		}
		if field.Tag.Get("hidden") == "true" {
			flag.Hidden = true
			SetBoolAnnotation(flags, name, "hidden", true)
		}
	}
}

func defaultValue(tag reflect.StructTag, defaults string) string {
	if def, ok := tag.Lookup("default"); ok {
		return def
	}
	switch defaults {
	case Dev:
		return tag.Get("devDefault")
	default:
		return tag.Get("releaseDefault")
	}
}

// SetBoolAnnotation sets an annotation on the flag with the given name.
func SetBoolAnnotation(flags *pflag.FlagSet, name, key string, value bool) {
	err := flags.SetAnnotation(name, key, []string{fmt.Sprint(value)})
	if err != nil {
		panic(fmt.Sprintf("cfgstruct: unable to set %s annotation for %s: %v", key, name, err))
	}
}

// DefaultsType returns which defaults the process runs with. It looks at
// --defaults on the command line and PWNED_DEFAULTS, falling back to
// release.
func DefaultsType() string {
	for i, arg := range os.Args {
		switch {
		case strings.HasPrefix(arg, "--defaults="):
			return strings.TrimPrefix(arg, "--defaults=")
		case arg == "--defaults" && i+1 < len(os.Args):
			return os.Args[i+1]
		}
	}
	if env := os.Getenv("PWNED_DEFAULTS"); env != "" {
		return env
	}
	return Release
}

// DefaultsFlag registers the --defaults flag, so it is accepted by the
// command line parser. The value itself is read by DefaultsType.
func DefaultsFlag(flags *pflag.FlagSet) {
	flags.String("defaults", DefaultsType(), "determines which set of configuration defaults to use. can either be 'dev' or 'release'")
}

// hyphenate converts CamelCase to camel-case, keeping acronyms together.
func hyphenate(name string) string {
	runes := []rune(name)
	var out strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && !unicode.IsUpper(runes[i-1])
			nextLower := i > 0 && i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1])
			if prevLower || nextLower {
				out.WriteByte('-')
			}
			r = unicode.ToLower(r)
		}
		out.WriteRune(r)
	}
	return out.String()
}
