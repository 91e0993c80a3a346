//go:build !gocv

package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOpen_WebcamWithoutOpenCV(t *testing.T) {
	_, err := Open("0", time.Second)
	assert.ErrorIs(t, err, ErrWebcamUnavailable)
	assert.False(t, WebcamSupported)
}
