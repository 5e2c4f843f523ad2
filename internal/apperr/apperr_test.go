package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("element abc: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("vote: %w", ErrInvalidState), http.StatusConflict},
		{ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("draft: %w", ErrValidation), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), "%v", tc.err)
	}
}
