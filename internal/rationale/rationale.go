// Package rationale renders structured forecast reasons as text in English or Vietnamese.
package rationale

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"hilo-forecaster/internal/models"
)

// Lang is a rendering language.
type Lang string

const (
	English    Lang = "en"
	Vietnamese Lang = "vi"
)

// ParseLang maps a user-supplied language tag to a supported Lang, defaulting to English.
func ParseLang(s string) Lang {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vi", "vn", "vi-vn", "vietnamese":
		return Vietnamese
	default:
		return English
	}
}

// templates use explicit argument indexes and %v only; arguments are normalized first.
var templates = map[models.ReasonCode]map[Lang]string{
	models.ReasonInsufficientData: {
		English:    "insufficient history: %[1]v of %[2]v rounds",
		Vietnamese: "chưa đủ dữ liệu: %[1]v/%[2]v ván",
	},
	models.ReasonWindowMajority: {
		English:    "%[2]v leads the last %[1]v rounds (%[3]v)",
		Vietnamese: "%[2]v áp đảo %[1]v ván gần nhất (%[3]v)",
	},
	models.ReasonAverageTotal: {
		English:    "average total over the last 10 rounds is %[1]v",
		Vietnamese: "tổng trung bình 10 ván gần nhất là %[1]v",
	},
	models.ReasonTotalTrend: {
		English:    "totals are %[1]v",
		Vietnamese: "tổng điểm đang %[1]v",
	},
	models.ReasonParity: {
		English:    "last total is %[1]v",
		Vietnamese: "tổng ván cuối là %[1]v",
	},
	models.ReasonStreakReversal: {
		English:    "short %[2]v streak of %[1]v tends to reverse",
		Vietnamese: "cầu %[2]v ngắn %[1]v ván thường đảo",
	},
	models.ReasonStreakContinuation: {
		English:    "%[2]v streak of %[1]v tends to continue",
		Vietnamese: "cầu %[2]v %[1]v ván thường tiếp diễn",
	},
	models.ReasonStreakCertainBreak: {
		English:    "%[2]v streak of %[1]v is due to break",
		Vietnamese: "cầu %[2]v %[1]v ván sắp gãy",
	},
	models.ReasonAlternationMotif: {
		English:    "alternation pattern detected (%[1]v)",
		Vietnamese: "phát hiện cầu 1-1 (%[1]v)",
	},
	models.ReasonDoublePairMotif: {
		English:    "2-2 pattern detected (%[1]v)",
		Vietnamese: "phát hiện cầu 2-2 (%[1]v)",
	},
	models.ReasonAverageTiebreak: {
		English:    "close call, decided by average total %[1]v",
		Vietnamese: "điểm sát nhau, quyết định theo tổng trung bình %[1]v",
	},
	models.ReasonAlternateDefault: {
		English:    "no clear signal, taking the opposite of the last outcome",
		Vietnamese: "không có tín hiệu rõ, đánh ngược ván trước",
	},
	models.ReasonMarkovTransition: {
		English:    "order-%[1]v context %[2]v gives P(High)=%[3]v over %[4]v samples",
		Vietnamese: "Markov bậc %[1]v ngữ cảnh %[2]v: P(Tài)=%[3]v trên %[4]v mẫu",
	},
	models.ReasonMarkovBaseRate: {
		English:    "no reliable context, base rate P(High)=%[1]v",
		Vietnamese: "không có ngữ cảnh tin cậy, tỷ lệ nền P(Tài)=%[1]v",
	},
	models.ReasonMotifRepeat: {
		English:    "motif %[1]v seen %[2]v times, usually followed by %[3]v",
		Vietnamese: "mẫu %[1]v xuất hiện %[2]v lần, thường theo sau là %[3]v",
	},
	models.ReasonRecencyVote: {
		English:    "recency-weighted margin %[1]v",
		Vietnamese: "chênh lệch theo độ gần %[1]v",
	},
	models.ReasonStreakBreak: {
		English:    "%[2]v streak of %[1]v breaks with probability %[3]v",
		Vietnamese: "cầu %[2]v %[1]v ván gãy với xác suất %[3]v",
	},
	models.ReasonStreakHold: {
		English:    "%[2]v streak of %[1]v likely holds (break probability %[3]v)",
		Vietnamese: "cầu %[2]v %[1]v ván có thể tiếp tục (xác suất gãy %[3]v)",
	},
	models.ReasonLowEntropy: {
		English:    "low entropy, break probability raised by %[1]v",
		Vietnamese: "độ hỗn loạn thấp, xác suất gãy tăng %[1]v",
	},
	models.ReasonAutoregressive: {
		English:    "autoregressive estimate of the next total is %[1]v",
		Vietnamese: "ước lượng tự hồi quy tổng ván tới là %[1]v",
	},
	models.ReasonMovingAverageCross: {
		English:    "SMA5 %[1]v vs SMA20 %[2]v",
		Vietnamese: "SMA5 %[1]v so với SMA20 %[2]v",
	},
	models.ReasonRSIOverbought: {
		English:    "RSI %[1]v is overbought",
		Vietnamese: "RSI %[1]v quá mua",
	},
	models.ReasonRSIOversold: {
		English:    "RSI %[1]v is oversold",
		Vietnamese: "RSI %[1]v quá bán",
	},
	models.ReasonRSINeutral: {
		English:    "RSI %[1]v is neutral",
		Vietnamese: "RSI %[1]v trung tính",
	},
	models.ReasonBridge: {
		English:    "%[1]v bridge over %[2]v runs, next %[3]v",
		Vietnamese: "cầu %[1]v qua %[2]v nhịp, ván tới %[3]v",
	},
	models.ReasonNoBridge: {
		English:    "no bridge in the last %[1]v rounds",
		Vietnamese: "không có cầu trong %[1]v ván gần nhất",
	},
	models.ReasonMetaProbability: {
		English:    "meta-learner P(High)=%[1]v",
		Vietnamese: "mô hình tổng hợp P(Tài)=%[1]v",
	},
	models.ReasonAgreementSummary: {
		English:    "%[1]v of %[2]v voters agree on %[3]v",
		Vietnamese: "%[1]v/%[2]v bộ dự đoán đồng ý %[3]v",
	},
}

// words localizes symbolic arguments.
var words = map[Lang]map[string]string{
	English: {
		string(models.High): "High",
		string(models.Low):  "Low",
		"switch_rate":       "switch rate",
	},
	Vietnamese: {
		string(models.High): "Tài",
		string(models.Low):  "Xỉu",
		"rising":            "tăng dần",
		"falling":           "giảm dần",
		"even":              "chẵn",
		"odd":               "lẻ",
		"switch_rate":       "tỷ lệ đổi chiều",
		"long_streak":       "bệt",
		"alternation":       "1-1",
		"one_two":           "1-2",
		"two_one":           "2-1",
		"two_two":           "2-2",
		"three_one":         "3-1",
		"three_two":         "3-2",
		"three_three":       "3-3",
	},
}

// normalize turns an argument into a display value. Whole floats print as integers so
// arguments that went through JSON render the same as fresh ones.
func normalize(arg any, lang Lang) any {
	switch v := arg.(type) {
	case models.Outcome:
		return word(string(v), lang)
	case string:
		return word(v, lang)
	case float64:
		return formatFloat(v)
	case float32:
		return formatFloat(float64(v))
	default:
		return v
	}
}

func word(s string, lang Lang) string {
	if w, ok := words[lang][s]; ok {
		return w
	}
	return s
}

func formatFloat(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Render formats one reason. Unknown codes render as the code followed by its arguments.
func Render(r models.Reason, lang Lang) string {
	args := make([]any, len(r.Args))
	for i, a := range r.Args {
		args[i] = normalize(a, lang)
	}

	tpl, ok := templates[r.Code][lang]
	if !ok {
		tpl, ok = templates[r.Code][English]
	}
	if !ok {
		if len(args) == 0 {
			return string(r.Code)
		}
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = fmt.Sprint(a)
		}
		return fmt.Sprintf("%s(%s)", r.Code, strings.Join(parts, ", "))
	}
	return fmt.Sprintf(tpl, args...)
}

// RenderAll formats every reason in order.
func RenderAll(reasons []models.Reason, lang Lang) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = Render(r, lang)
	}
	return out
}

// OutcomeLabel localizes an outcome symbol.
func OutcomeLabel(o models.Outcome, lang Lang) string {
	return word(string(o), lang)
}
