package stageexec

import "testing"

func TestBandScale(t *testing.T) {
	tests := []struct {
		band    band
		percent int
		want    int
	}{
		{bandDownloading, 0, 0},
		{bandDownloading, 50, 10},
		{bandDownloading, 100, 20},
		{bandExtracting, 40, 22},
		{bandTranscribing, -5, 25},
		{bandTranscribing, 100, 90},
		{bandTranscribing, 250, 90},
		{bandFormatting, 100, 99},
	}
	for _, tc := range tests {
		if got := tc.band.scale(tc.percent); got != tc.want {
			t.Errorf("band %v scale(%d) = %d, want %d", tc.band, tc.percent, got, tc.want)
		}
	}
}

func TestStageReporterDropsRepeatsAndRegressions(t *testing.T) {
	type update struct {
		percent int
		message string
	}
	var got []update
	rep := newStageReporter(bandTranscribing, "Transcribing audio", func(p int, m string) {
		got = append(got, update{p, m})
	})
	rep.Report(0, "")
	rep.Report(20, "")
	rep.Report(20, "")
	rep.Report(10, "")
	rep.Report(20, "Transcribing audio (segment 4)")
	rep.close()
	rep.Report(100, "")

	want := []update{{38, "Transcribing audio"}, {38, "Transcribing audio (segment 4)"}}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
