package optimizer

// Kind names the planning question asked of the optimizer.
type Kind string

const (
	KindSystem    Kind = "system"
	KindPlants    Kind = "plants"
	KindStorages  Kind = "storages"
	KindPipelines Kind = "pipelines"
)

// Fallback returns the static suggestion served when the optimizer cannot
// be reached. The result is always marked with fallback=true.
func Fallback(kind Kind) Plan {
	plan := Plan{
		"fallback": true,
		"note":     "Basic analysis, full optimization requires the optimizer service",
	}
	switch kind {
	case KindPlants:
		plan["suggestions"] = []interface{}{plantSuggestion()}
	case KindStorages:
		plan["suggestions"] = []interface{}{storageSuggestion()}
	case KindPipelines:
		plan["suggestions"] = []interface{}{pipelineSuggestion()}
	default:
		plan["plants"] = []interface{}{plantSuggestion()}
		plan["storages"] = []interface{}{storageSuggestion()}
		plan["pipelines"] = []interface{}{pipelineSuggestion()}
	}
	return plan
}

func plantSuggestion() map[string]interface{} {
	return map[string]interface{}{
		"location":           []float64{-74.006, 40.7128},
		"score":              85,
		"reasoning":          []string{"Good grid connectivity", "Low regulatory barriers"},
		"estimated_cost":     1200000,
		"projected_capacity": 50,
	}
}

func storageSuggestion() map[string]interface{} {
	return map[string]interface{}{
		"location":      []float64{-74.006, 40.7128},
		"type":          "battery",
		"capacity":      100,
		"score":         82,
		"cost_estimate": 800000,
	}
}

func pipelineSuggestion() map[string]interface{} {
	return map[string]interface{}{
		"route":         [][]float64{{-74.006, 40.7128}, {-73.9855, 40.758}},
		"capacity":      50,
		"cost_estimate": 1500000,
		"score":         78,
	}
}
