package inference

import (
	"sort"
	"strings"
)

// ModelSpec describes how to feed a segmentation model.
type ModelSpec struct {
	Name      string
	InputSize int
	Mean      [3]float32
	Std       [3]float32
}

var (
	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

var catalog = map[string]ModelSpec{
	"u2net":             {Name: "u2net", InputSize: 320, Mean: imagenetMean, Std: imagenetStd},
	"u2netp":            {Name: "u2netp", InputSize: 320, Mean: imagenetMean, Std: imagenetStd},
	"u2net_human_seg":   {Name: "u2net_human_seg", InputSize: 320, Mean: imagenetMean, Std: imagenetStd},
	"silueta":           {Name: "silueta", InputSize: 320, Mean: imagenetMean, Std: imagenetStd},
	"isnet-general-use": {Name: "isnet-general-use", InputSize: 1024, Mean: [3]float32{0.5, 0.5, 0.5}, Std: [3]float32{1, 1, 1}},
}

func LookupModel(name string) (ModelSpec, bool) {
	spec, ok := catalog[strings.TrimSpace(name)]
	return spec, ok
}

// ModelNames returns the catalog ids in sorted order.
func ModelNames() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
