package ristretto_test

import (
	"testing"

	"github.com/trialscout/trialscout/internal/adapter/ristretto"
	"github.com/trialscout/trialscout/internal/port/cache/cachetest"
)

func TestCacheCompliance(t *testing.T) {
	c, err := ristretto.New(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	cachetest.Run(t, c)
}
