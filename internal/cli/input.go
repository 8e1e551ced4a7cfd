package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/patdav1503/securelog-msg-network/internal/ir"
	"github.com/patdav1503/securelog-msg-network/internal/model"
)

// addCallerFlag registers the required --as flag.
func addCallerFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "as", "", "calling participant as Type#id (required)")
	_ = cmd.MarkFlagRequired("as")
}

func parseCaller(s string) (model.Ref, error) {
	ref, err := model.ParseRef(s)
	if err != nil {
		return model.Ref{}, WrapExitError(ExitCommandError, "invalid --as", err)
	}
	return ref, nil
}

// parsePayload reads a transaction payload from inline JSON or a YAML
// or JSON file.
func parsePayload(inline, file string) (ir.IRObject, error) {
	if inline != "" && file != "" {
		return nil, NewExitError(ExitCommandError, "--payload and --payload-file are mutually exclusive")
	}

	var raw map[string]any
	switch {
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read payload file", err)
		}
		if ext := filepath.Ext(file); ext == ".json" {
			raw, err = decodeJSONObject(data)
		} else {
			err = yaml.Unmarshal(data, &raw)
		}
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid payload file", err)
		}
	case inline != "":
		var err error
		if raw, err = decodeJSONObject([]byte(inline)); err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid --payload JSON", err)
		}
	}

	obj := ir.IRObject{}
	for key, val := range raw {
		v, err := ir.FromAny(val)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid payload", fmt.Errorf("%s: %w", key, err))
		}
		obj[key] = v
	}
	return obj, nil
}

// decodeJSONObject keeps integers exact so they convert to IR ints.
func decodeJSONObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// decodeRecord builds a typed record from its JSON form.
func decodeRecord(typ, data string) (model.Record, error) {
	rec, err := model.NewRecord(typ)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(strings.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(rec); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --record JSON", err)
	}
	return rec, nil
}

// writeRecord prints a record as Type#id followed by its fields.
func writeRecord(w io.Writer, rec model.Record) {
	fmt.Fprintln(w, rec.Ref())
	fields := rec.Fields()
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		fmt.Fprintf(w, "  %s: %s\n", k, fields[k])
	}
}

// writeEvent prints one event on a line with its canonical fields.
func writeEvent(w io.Writer, e model.Event) {
	fields, err := ir.MarshalCanonical(e.Fields)
	if err != nil || e.Fields == nil {
		fields = []byte("{}")
	}
	fmt.Fprintf(w, "%d %s %s tx=%s caller=%s %s\n",
		e.Seq, e.Timestamp.UTC().Format(model.TimestampFormat), e.Kind, e.TransactionID, e.Caller, fields)
}
