package model

// PoseLabels lists the poses in model output order. Index i of the output
// vector is the probability of PoseLabels[i].
var PoseLabels = []string{
	"Anantasana",
	"Ardhakati Chakrasana",
	"Bhujangasana",
	"Kati Chakrasana",
	"Marjariasana",
	"Parvatasana",
	"Sarvangasana",
	"Tadasana",
	"Vajrasana",
	"Viparita Karani",
}

type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
}

type Prediction struct {
	PoseClass        string             `json:"pose_class"`
	Confidence       float64            `json:"confidence"`
	IsCorrect        bool               `json:"is_correct"`
	AllProbabilities map[string]float64 `json:"all_probabilities,omitempty"`
	Feedback         string             `json:"feedback"`
}
