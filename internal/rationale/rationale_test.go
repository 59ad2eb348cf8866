package rationale

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hilo-forecaster/internal/models"
)

func TestRenderEnglish(t *testing.T) {
	r := models.NewReason(models.ReasonStreakBreak, 10, models.High, 0.95)
	assert.Equal(t, "High streak of 10 breaks with probability 0.95", Render(r, English))

	r = models.NewReason(models.ReasonAgreementSummary, 5, 9, models.Low)
	assert.Equal(t, "5 of 9 voters agree on Low", Render(r, English))

	r = models.NewReason(models.ReasonAlternateDefault)
	assert.Equal(t, "no clear signal, taking the opposite of the last outcome", Render(r, English))
}

func TestRenderVietnamese(t *testing.T) {
	r := models.NewReason(models.ReasonBridge, "two_two", 6, models.High)
	assert.Equal(t, "cầu 2-2 qua 6 nhịp, ván tới Tài", Render(r, Vietnamese))

	r = models.NewReason(models.ReasonParity, "odd")
	assert.Equal(t, "tổng ván cuối là lẻ", Render(r, Vietnamese))
}

func TestRenderSurvivesJSON(t *testing.T) {
	in := []models.Reason{models.NewReason(models.ReasonMarkovTransition, 4, "LHLH", 0.25, 58)}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	var out []models.Reason
	require.NoError(t, json.Unmarshal(raw, &out))

	assert.Equal(t, RenderAll(in, English), RenderAll(out, English))
	assert.Equal(t, "order-4 context LHLH gives P(High)=0.25 over 58 samples", Render(out[0], English))
}

func TestRenderUnknownCode(t *testing.T) {
	assert.Equal(t, "mystery(1, High)", Render(models.NewReason("mystery", 1, models.High), English))
	assert.Equal(t, "mystery", Render(models.NewReason("mystery"), Vietnamese))
}

func TestEveryCodeHasBothLanguages(t *testing.T) {
	for code, byLang := range templates {
		assert.NotEmpty(t, byLang[English], code)
		assert.NotEmpty(t, byLang[Vietnamese], code)
	}
}

func TestParseLang(t *testing.T) {
	assert.Equal(t, Vietnamese, ParseLang("VI"))
	assert.Equal(t, English, ParseLang(""))
	assert.Equal(t, English, ParseLang("fr"))
	assert.Equal(t, "Xỉu", OutcomeLabel(models.Low, Vietnamese))
}
