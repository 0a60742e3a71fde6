package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
)

// errFailed makes the process exit non-zero after the result was printed.
var errFailed = errors.New("operation failed")

// printResult writes resp as indented JSON or text as-is, and turns a
// rejected or failed result into a non-zero exit.
func printResult(asJSON bool, resp any, text string, ok bool) error {
	if asJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		fmt.Println(string(data))
	} else {
		fmt.Println(text)
	}
	if !ok {
		return errFailed
	}
	return nil
}
