package analysis

import "math"

type FrameResult struct {
	FrameNumber  int     `json:"frame_number"`
	PoseDetected string  `json:"pose_detected"`
	Confidence   float64 `json:"confidence"`
	IsCorrect    bool    `json:"is_correct"`
	Feedback     string  `json:"feedback"`
	Image        string  `json:"image"`
}

type Report struct {
	VideoName           string        `json:"video_name"`
	ExpectedPose        *string       `json:"expected_pose"`
	TotalFramesAnalyzed int           `json:"total_frames_analyzed"`
	CorrectFrames       int           `json:"correct_frames"`
	IncorrectFrames     int           `json:"incorrect_frames"`
	AccuracyPercentage  float64       `json:"accuracy_percentage"`
	AverageConfidence   float64       `json:"average_confidence"`
	FrameResults        []FrameResult `json:"frame_results"`
	OverallFeedback     string        `json:"overall_feedback"`
}

// BuildReport aggregates per-frame results. With an expected pose a frame
// counts toward the accuracy only when it matches with confidence above 0.7;
// otherwise the frame's own correctness flag decides. The overall feedback
// always grades the frames' correctness flags. results must not be empty.
func BuildReport(videoName, expectedPose string, results []FrameResult) *Report {
	correct, formCorrect := 0, 0
	var confidenceSum float64
	for _, r := range results {
		confidenceSum += r.Confidence
		if r.IsCorrect {
			formCorrect++
		}
		if expectedPose != "" {
			if r.PoseDetected == expectedPose && r.Confidence > expectedPoseMinConfidence {
				correct++
			}
		} else if r.IsCorrect {
			correct++
		}
	}

	n := len(results)
	accuracy := round2(float64(correct) / float64(n) * 100)
	formAccuracy := round2(float64(formCorrect) / float64(n) * 100)

	report := &Report{
		VideoName:           videoName,
		TotalFramesAnalyzed: n,
		CorrectFrames:       correct,
		IncorrectFrames:     n - correct,
		AccuracyPercentage:  accuracy,
		AverageConfidence:   round2(confidenceSum / float64(n)),
		FrameResults:        results,
		OverallFeedback:     OverallFeedback(formAccuracy, expectedPose),
	}
	if expectedPose != "" {
		report.ExpectedPose = &expectedPose
	}
	return report
}

// OverallFeedback picks the summary line for an accuracy percentage.
func OverallFeedback(accuracy float64, expectedPose string) string {
	var prefix string
	if expectedPose != "" {
		prefix = "Expected: " + expectedPose + ". "
	}

	switch {
	case accuracy >= 90:
		return prefix + "Excellent! Your form is nearly perfect. Keep it up!"
	case accuracy >= 70:
		return prefix + "Good job! Minor adjustments needed in some frames."
	case accuracy >= 50:
		return prefix + "Decent attempt. Focus on maintaining proper form throughout."
	default:
		return prefix + "Needs improvement. Review the pose guidelines and try again."
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
