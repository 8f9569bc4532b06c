package status

// Option is one allowed status value with its display metadata.
type Option struct {
	Value string
	Label string
	Tone  string
}

// Vocabulary is the fixed set of statuses an entity kind may take.
type Vocabulary struct {
	Kind    Kind
	Options []Option
}

// Allows reports whether value is part of the vocabulary.
func (v Vocabulary) Allows(value string) bool {
	for _, opt := range v.Options {
		if opt.Value == value {
			return true
		}
	}
	return false
}

// Values returns the allowed status values in declaration order.
func (v Vocabulary) Values() []string {
	values := make([]string, 0, len(v.Options))
	for _, opt := range v.Options {
		values = append(values, opt.Value)
	}
	return values
}

// Per-kind vocabularies are fixed at compile time; they are not runtime
// configurable.
var vocabularies = map[Kind]Vocabulary{
	KindAgreement: {
		Kind: KindAgreement,
		Options: []Option{
			{Value: "draft", Label: "Draft", Tone: "neutral"},
			{Value: "sent", Label: "Sent", Tone: "info"},
			{Value: "in-progress", Label: "In Progress", Tone: "info"},
			{Value: "completed", Label: "Completed", Tone: "success"},
			{Value: "cancelled", Label: "Cancelled", Tone: "danger"},
		},
	},
	KindSubAgreement: {
		Kind: KindSubAgreement,
		Options: []Option{
			{Value: "pending", Label: "Pending", Tone: "neutral"},
			{Value: "accepted", Label: "Accepted", Tone: "success"},
			{Value: "rejected", Label: "Rejected", Tone: "danger"},
			{Value: "partially-accepted", Label: "Partially Accepted", Tone: "warning"},
			{Value: "needs-attention", Label: "Needs Attention", Tone: "warning"},
			{Value: "cancelled", Label: "Cancelled", Tone: "danger"},
		},
	},
	KindLineItem: {
		Kind: KindLineItem,
		Options: []Option{
			{Value: "pending", Label: "Pending", Tone: "neutral"},
			{Value: "accepted", Label: "Accepted", Tone: "success"},
			{Value: "rejected", Label: "Rejected", Tone: "danger"},
			{Value: "reassigned", Label: "Reassigned", Tone: "warning"},
			{Value: "cancelled", Label: "Cancelled", Tone: "danger"},
		},
	},
}

// defaultVocabulary backs unknown kinds.
var defaultVocabulary = Vocabulary{
	Options: []Option{
		{Value: "pending", Label: "Pending", Tone: "neutral"},
		{Value: "confirmed", Label: "Confirmed", Tone: "success"},
		{Value: "cancelled", Label: "Cancelled", Tone: "danger"},
	},
}

// VocabularyFor returns the vocabulary for kind, falling back to the default
// set of pending/confirmed/cancelled for unknown kinds.
func VocabularyFor(kind Kind) Vocabulary {
	if v, ok := vocabularies[kind]; ok {
		return v
	}
	v := defaultVocabulary
	v.Kind = kind
	return v
}
