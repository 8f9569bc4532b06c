package status

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVocabularyForKnownKinds(t *testing.T) {
	require.Equal(t,
		[]string{"draft", "sent", "in-progress", "completed", "cancelled"},
		VocabularyFor(KindAgreement).Values())
	require.Equal(t,
		[]string{"pending", "accepted", "rejected", "partially-accepted", "needs-attention", "cancelled"},
		VocabularyFor(KindSubAgreement).Values())
	require.Equal(t,
		[]string{"pending", "accepted", "rejected", "reassigned", "cancelled"},
		VocabularyFor(KindLineItem).Values())
}

func TestVocabularyFallback(t *testing.T) {
	v := VocabularyFor(Kind("shipment"))
	require.Equal(t, Kind("shipment"), v.Kind)
	require.Equal(t, []string{"pending", "confirmed", "cancelled"}, v.Values())
	require.True(t, v.Allows("confirmed"))
	require.False(t, v.Allows("accepted"))
}

func TestVocabularyAllows(t *testing.T) {
	v := VocabularyFor(KindLineItem)
	require.True(t, v.Allows("reassigned"))
	require.False(t, v.Allows("draft"))
	require.False(t, v.Allows(""))
}
