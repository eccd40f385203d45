package errors

import "sort"

// ErrorTemplate defines a registered error code.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

const docBase = "https://srasm.dev/docs/errors/"

var registry = map[string]ErrorTemplate{
	// Config (S100-S109)
	"S100": {
		Category: CategoryConfig,
		Message:  "Configuration file not found",
		Detail:   "No srasm.json or srasm.yaml was found in this directory or any parent.",
	},
	"S101": {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
		Detail:   "The configuration file was read but one or more values are out of range.",
	},
	"S102": {
		Category: CategoryConfig,
		Message:  "Configuration parse error",
		Detail:   "The configuration file is not valid JSON or YAML.",
	},
	"S103": {
		Category: CategoryConfig,
		Message:  "Missing API key",
		Detail:   "The OpenAI explainer needs an API key. Set OPENAI_API_KEY or explain.apiKey.",
	},

	// Store (S110-S119)
	"S110": {
		Category: CategoryStore,
		Message:  "Slice not found",
		Detail:   "The key was not declared when the store was built. The set of slices is fixed at construction.",
	},
	"S111": {
		Category: CategoryStore,
		Message:  "Slice type mismatch",
		Detail:   "The slice exists but was declared with a different value type.",
	},
	"S112": {
		Category: CategoryStore,
		Message:  "Duplicate slice",
		Detail:   "Two declarations share the same key.",
	},
	"S113": {
		Category: CategoryStore,
		Message:  "Update function failed",
		Detail:   "A Compute, ComputePatch or Try update returned an error or panicked. The slice was left unchanged.",
	},
	"S114": {
		Category: CategoryStore,
		Message:  "Listener panicked",
		Detail:   "A subscriber panicked while being notified. The update was committed and the other subscribers were notified.",
	},
	"S115": {
		Category: CategoryStore,
		Message:  "Merge failed",
		Detail:   "A patch could not be merged into the slice value. Merge requires a struct, struct pointer or string-keyed map.",
	},

	// Server (S120-S129)
	"S120": {
		Category: CategoryServer,
		Message:  "Server failed to start",
		Detail:   "The explanation proxy could not listen on the configured address.",
	},

	// History (S130-S139)
	"S130": {
		Category: CategoryHistory,
		Message:  "Chat history unavailable",
		Detail:   "The chat history database could not be opened or is closed.",
	},
	"S131": {
		Category: CategoryHistory,
		Message:  "Chat not found",
	},

	// Reports (S140-S149)
	"S140": {
		Category: CategoryReports,
		Message:  "Report sink unavailable",
		Detail:   "Failure reports cannot be stored. Check reports.dir or the S3 bucket settings.",
	},
	"S141": {
		Category: CategoryReports,
		Message:  "Report not found",
	},

	// Explain (S150-S159)
	"S150": {
		Category: CategoryExplain,
		Message:  "Explanation backend failed",
		Detail:   "The completion service was slow, unreachable or returned nothing usable.",
	},

	// CLI (S190-S199)
	"S190": {
		Category: CategoryCLI,
		Message:  "Invalid arguments",
	},
	"S199": {
		Category: CategoryCLI,
		Message:  "Unexpected error",
	},
}

func init() {
	for code, t := range registry {
		if t.DocURL == "" {
			t.DocURL = docBase + code
			registry[code] = t
		}
	}
}

// GetAllCodes returns all registered codes in order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for a code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds or replaces a template.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
