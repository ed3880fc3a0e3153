package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestResolveNilRawReturnsDefaults(t *testing.T) {
	require.Equal(t, Default(), Resolve(nil))
}

func TestResolveOverridesOnlySetFields(t *testing.T) {
	binWidth := 0.25
	threads := 4
	raw := &RawSettings{BinWidthAngstrom: &binWidth, Threads: &threads}

	got := Resolve(raw)
	want := Default()
	want.BinWidthAngstrom = binWidth
	want.Threads = threads

	require.Equal(t, want, got)
}

func TestWithChainOverridesDefaultsFluently(t *testing.T) {
	s := Default()
	got := s.WithBinWidthAngstrom(0.2).
		WithDMaxAngstrom(300).
		WithQAxis(1e-3, 0.5, 500).
		WithHistogramVariant(VariantPartialMT).
		WithWeightedBins(true).
		WithVariableBinWidth(true).
		WithThreads(8).
		WithJobSize(64).
		WithVoxelWidthAngstrom(2).
		WithWaterDensity(0.3)

	require.Same(t, &s, got)
	require.Equal(t, 0.2, s.BinWidthAngstrom)
	require.Equal(t, 300.0, s.DMaxAngstrom)
	require.Equal(t, 1e-3, s.QMin)
	require.Equal(t, 0.5, s.QMax)
	require.Equal(t, 500, s.QPoints)
	require.Equal(t, VariantPartialMT, s.HistogramVariant)
	require.True(t, s.WeightedBins)
	require.True(t, s.VariableBinWidth)
	require.Equal(t, 8, s.Threads)
	require.Equal(t, 64, s.JobSize)
	require.Equal(t, 2.0, s.VoxelWidthAngstrom)
	require.Equal(t, 0.3, s.WaterDensity)
	require.NoError(t, s.Validate())
}

func TestValidateRejectsOutOfRangeFields(t *testing.T) {
	cases := []struct {
		name string
		f    func(*EngineSettings)
	}{
		{"bin width", func(s *EngineSettings) { s.BinWidthAngstrom = 0 }},
		{"d max", func(s *EngineSettings) { s.DMaxAngstrom = -1 }},
		{"q range", func(s *EngineSettings) { s.QMin = 1; s.QMax = 1 }},
		{"q points", func(s *EngineSettings) { s.QPoints = 1 }},
		{"threads", func(s *EngineSettings) { s.Threads = 0 }},
		{"job size", func(s *EngineSettings) { s.JobSize = 0 }},
		{"voxel width", func(s *EngineSettings) { s.VoxelWidthAngstrom = 0 }},
		{"water density", func(s *EngineSettings) { s.WaterDensity = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Default()
			tc.f(&s)
			require.Error(t, s.Validate())
		})
	}
}

func TestNBinsCoversDMax(t *testing.T) {
	s := Default()
	s.BinWidthAngstrom = 0.5
	s.DMaxAngstrom = 10
	require.Equal(t, 21, s.NBins())
}
