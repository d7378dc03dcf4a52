// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package process

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/pflag"
	"github.com/zeebo/errs"
	yaml "gopkg.in/yaml.v2"
)

// SaveConfig writes every visible flag of flags to outfile as yaml.
// Values in overrides replace the flag values.
func SaveConfig(flags *pflag.FlagSet, outfile string, overrides map[string]any) error {
	settings := yaml.MapSlice{}

	var names []string
	flags.VisitAll(func(flag *pflag.Flag) {
		if flag.Hidden || readBoolAnnotation(flag, "hidden") || readBoolAnnotation(flag, "setup") {
			return
		}
		switch flag.Name {
		case "config-dir", "defaults", "help":
			return
		}
		names = append(names, flag.Name)
	})
	sort.Strings(names)

	for _, name := range names {
		var value any = flags.Lookup(name).Value.String()
		if slice, ok := flags.Lookup(name).Value.(pflag.SliceValue); ok {
			value = slice.GetSlice()
		}
		if override, ok := overrides[name]; ok {
			value = override
		}
		settings = append(settings, yaml.MapItem{Key: name, Value: value})
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return errs.Wrap(err)
	}

	if err := os.MkdirAll(filepath.Dir(outfile), 0o700); err != nil {
		return errs.Wrap(err)
	}
	return errs.Wrap(atomicWrite(outfile, 0o600, data))
}

// readBoolAnnotation is a helper to see if a boolean annotation is set to true on the flag.
func readBoolAnnotation(flag *pflag.Flag, key string) bool {
	annotation := flag.Annotations[key]
	return len(annotation) > 0 && annotation[0] == "true"
}

// atomicWrite is a helper to atomically write the data to the outfile.
func atomicWrite(outfile string, mode os.FileMode, data []byte) (err error) {
	fh, err := os.CreateTemp(filepath.Dir(outfile), filepath.Base(outfile))
	if err != nil {
		return errs.Wrap(err)
	}
	defer func() {
		if err != nil {
			err = errs.Combine(err, fh.Close())
			err = errs.Combine(err, os.Remove(fh.Name()))
		}
	}()
	if _, err := fh.Write(data); err != nil {
		return errs.Wrap(err)
	}
	if err := fh.Chmod(mode); err != nil {
		return errs.Wrap(err)
	}
	if err := fh.Sync(); err != nil {
		return errs.Wrap(err)
	}
	if err := fh.Close(); err != nil {
		return errs.Wrap(err)
	}
	if err := os.Rename(fh.Name(), outfile); err != nil {
		return errs.Wrap(err)
	}
	return nil
}
