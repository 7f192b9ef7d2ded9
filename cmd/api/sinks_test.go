package main

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestBuiltSinks_Close(t *testing.T) {
	var order []string
	closer := func(name string, err error) func() error {
		return func() error {
			order = append(order, name)
			return err
		}
	}

	b := &builtSinks{closers: []func() error{
		closer("pubsub", nil),
		closer("storage", fmt.Errorf("storage: connection reset")),
		closer("compute", fmt.Errorf("compute: already closed")),
	}}

	err := b.Close()
	if !reflect.DeepEqual(order, []string{"compute", "storage", "pubsub"}) {
		t.Errorf("close order = %v, want reverse of creation", order)
	}
	if err == nil || !strings.Contains(err.Error(), "connection reset") || !strings.Contains(err.Error(), "already closed") {
		t.Errorf("Close() error = %v, want both failures", err)
	}
}

func TestBuiltSinks_Abort(t *testing.T) {
	buildErr := fmt.Errorf("create bigquery client: no credentials")

	clean := &builtSinks{closers: []func() error{func() error { return nil }}}
	if err := clean.abort(buildErr); err != buildErr {
		t.Errorf("abort() = %v, want the build error unchanged", err)
	}

	failing := &builtSinks{closers: []func() error{func() error { return fmt.Errorf("pubsub: close failed") }}}
	err := failing.abort(buildErr)
	if err == nil || !strings.Contains(err.Error(), "no credentials") || !strings.Contains(err.Error(), "close failed") {
		t.Errorf("abort() = %v, want build and close errors", err)
	}
}
