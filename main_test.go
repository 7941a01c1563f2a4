package main

import (
	"io"
	"os"
	"testing"

	"github.com/rs/zerolog"
)

func TestMain(m *testing.M) {
	Logger = zerolog.New(io.Discard)
	os.Exit(m.Run())
}
