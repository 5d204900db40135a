package errors

import (
	"errors"
	"io"
	"testing"

	"github.com/mwantia/mdquery/data"
)

func TestConstructors_KeepSentinelAndCause(t *testing.T) {
	err := SourceUnavailable(io.ErrUnexpectedEOF, "consul")
	if !errors.Is(err, data.ErrSourceUnavailable) {
		t.Fatalf("Expected ErrSourceUnavailable in chain: %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("Expected cause in chain: %v", err)
	}

	err = UnknownScheme("ftp://host")
	if !errors.Is(err, data.ErrUnknownScheme) {
		t.Fatalf("Expected ErrUnknownScheme in chain: %v", err)
	}
	if err.Error() != "mdquery: unknown source address scheme: address 'ftp://host'" {
		t.Fatalf("Unexpected message: %s", err.Error())
	}
}
