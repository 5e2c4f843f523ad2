package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestCountersCollect(t *testing.T) {
	before := testutil.ToFloat64(VotesCast.WithLabelValues("sepia"))
	VotesCast.WithLabelValues("sepia").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(VotesCast.WithLabelValues("sepia")))
}
