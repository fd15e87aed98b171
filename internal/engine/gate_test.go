package engine

import "testing"

func TestScoreGoodEnough(t *testing.T) {
	cases := []struct {
		score int
		best  *int
		want  bool
	}{
		{score: 100, best: nil, want: true},
		{score: 10, best: intp(10), want: true},
		{score: 9, best: intp(10), want: true},
		{score: 11, best: intp(10), want: true},  // ceil(10.5) = 11
		{score: 12, best: intp(10), want: false},
		{score: 2, best: intp(1), want: true},    // ceil(1.05) = 2
		{score: 3, best: intp(1), want: false},
		{score: 105, best: intp(100), want: true},
		{score: 106, best: intp(100), want: false},
		{score: 21, best: intp(20), want: true},  // ceil(21.0) = 21
		{score: 22, best: intp(20), want: false},
	}
	for _, tc := range cases {
		if got := UploadWorthy(tc.score, tc.best); got != tc.want {
			t.Errorf("UploadWorthy(%d, %v) = %v, want %v", tc.score, tc.best, got, tc.want)
		}
	}
}
