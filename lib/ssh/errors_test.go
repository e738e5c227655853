// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByKindOnly(t *testing.T) {
	err := wrapError(KindSocketIO, "accept failed", errors.New("boom"))
	assert.True(t, errors.Is(err, &Error{Kind: KindSocketIO}))
	assert.False(t, errors.Is(err, &Error{Kind: KindCrypto}))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := wrapError(KindCrypto, "sign", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestErrorMessageFormat(t *testing.T) {
	err := newError(KindConfig, "no host key configured")
	assert.Contains(t, err.Error(), "no host key configured")
	assert.Contains(t, err.Error(), "config")
}
