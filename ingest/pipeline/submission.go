// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"pwnedpasswords.io/ingest/private/hashutil"
)

// IngestionValue is one submitted observation.
type IngestionValue struct {
	SHA1Hash   string `json:"sha1Hash"`
	NTLMHash   string `json:"ntlmHash"`
	Prevalence int64  `json:"prevalence"`
}

// InvalidEntryError describes the first invalid entry of a submission.
type InvalidEntryError struct {
	Index  int
	Reason string
}

// Error implements error.
func (err *InvalidEntryError) Error() string {
	return fmt.Sprintf("entry %d: %s", err.Index, err.Reason)
}

// Validate returns a description of what is wrong with value, or an empty
// string when the value is valid.
func (value IngestionValue) Validate() string {
	switch {
	case value.SHA1Hash == "":
		return "sha1Hash is missing"
	case !hashutil.IsHexOfLength(value.SHA1Hash, hashutil.SHA1.HexLength()):
		return fmt.Sprintf("sha1Hash must be %d hex characters", hashutil.SHA1.HexLength())
	case value.NTLMHash == "":
		return "ntlmHash is missing"
	case !hashutil.IsHexOfLength(value.NTLMHash, hashutil.NTLM.HexLength()):
		return fmt.Sprintf("ntlmHash must be %d hex characters", hashutil.NTLM.HexLength())
	case value.Prevalence <= 0:
		return "prevalence must be positive"
	case value.Prevalence > math.MaxUint32:
		return fmt.Sprintf("prevalence must not exceed %d", uint32(math.MaxUint32))
	}
	return ""
}

// DecodeValues streams the JSON array in r and calls fn for every element
// in order. Malformed JSON fails with ErrValidation.
func DecodeValues(r io.Reader, fn func(index int, value IngestionValue) error) error {
	decoder := json.NewDecoder(r)

	token, err := decoder.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ErrValidation.New("submission is empty")
		}
		return ErrValidation.New("malformed submission: %v", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '[' {
		return ErrValidation.New("submission must be a JSON array")
	}

	for index := 0; decoder.More(); index++ {
		var value IngestionValue
		if err := decoder.Decode(&value); err != nil {
			return ErrValidation.Wrap(&InvalidEntryError{Index: index, Reason: err.Error()})
		}
		if err := fn(index, value); err != nil {
			return err
		}
	}

	if _, err := decoder.Token(); err != nil {
		return ErrValidation.New("malformed submission: %v", err)
	}
	return nil
}

// ValidateSubmission checks every value of the JSON array in r and returns
// how many values it holds. The first invalid value fails with ErrValidation
// wrapping an *InvalidEntryError.
func ValidateSubmission(r io.Reader) (count int, err error) {
	err = DecodeValues(r, func(index int, value IngestionValue) error {
		if reason := value.Validate(); reason != "" {
			return ErrValidation.Wrap(&InvalidEntryError{Index: index, Reason: reason})
		}
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, ErrValidation.New("submission contains no entries")
	}
	return count, nil
}

// checkSubscriptionID verifies that id can be used as a path element of
// storage keys.
func checkSubscriptionID(id string) error {
	switch {
	case id == "":
		return ErrValidation.New("missing subscription id")
	case id == "." || id == "..", strings.ContainsAny(id, "/\\"):
		return ErrValidation.New("invalid subscription id %q", id)
	}
	return nil
}
