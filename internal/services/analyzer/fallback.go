// -----------------------------------------------------------------------
// Fallback Classifier - Deterministic Keyword Classification Logic
// Pure functions for classifying messages when the AI capability is down
// -----------------------------------------------------------------------

package analyzer

import (
	"strings"

	"github.com/ternarybob/sentinel/internal/models"
)

// Keyword tables for the rule-based classifier. Matching is done on the
// lowercased message, so entries are lowercase. Korean entries cover the
// chat-room vocabulary the classifier was tuned against.
var (
	spamKeywords = []string{
		"도배", "무한반복", "클릭하세요", "click here", "free money",
		"당첨되셨습니다", "복권", "코인 추천", "수익 보장",
	}
	advertisementKeywords = []string{
		"광고", "할인", "특가", "이벤트", "쿠폰", "무료 배송", "구매하세요",
		"판매합니다", "분양", "대출", "sale", "discount", "buy now", "promotion",
	}
	abuseKeywords = []string{
		"바보", "멍청", "병신", "꺼져", "죽어", "시발", "새끼",
		"idiot", "stupid", "moron", "shut up",
	}
	inappropriateKeywords = []string{
		"성인", "야한", "19금", "음란", "porn", "nsfw", "nude",
	}
	conflictKeywords = []string{
		"싸우자", "말싸움", "시비", "그만해", "너 때문에", "fight me",
		"your fault", "argue",
	}
)

// ClassifyFallback is the deterministic substitute for the AI capability.
// It is pure (no I/O, no randomness, no clock) and always returns a result.
//
// Classification order, first match wins:
//  1. spam      — repeat-run flooding or spam keywords -> 0.80-0.90
//  2. abuse     — profanity/harassment keywords        -> 0.75
//  3. inappropriate — adult-content keywords           -> 0.75
//  4. advertisement — solicitation keywords, or a URL
//     combined with purchase language                  -> 0.70
//  5. conflict  — argument keywords                    -> 0.60
//  6. normal    — everything else                      -> 0.50
func ClassifyFallback(content string) *models.AnalysisResult {
	lowered := strings.ToLower(strings.TrimSpace(content))

	if isRepeatFlood(lowered) {
		return fallbackResult(models.DetectionSpam, 0.90, "repeated content flood detected by fallback rules")
	}
	if matched, kw := matchKeyword(lowered, spamKeywords); matched {
		return fallbackResult(models.DetectionSpam, 0.80, "spam keyword match: "+kw)
	}
	if matched, kw := matchKeyword(lowered, abuseKeywords); matched {
		return fallbackResult(models.DetectionAbuse, 0.75, "abusive keyword match: "+kw)
	}
	if matched, kw := matchKeyword(lowered, inappropriateKeywords); matched {
		return fallbackResult(models.DetectionInappropriate, 0.75, "inappropriate keyword match: "+kw)
	}
	if matched, kw := matchKeyword(lowered, advertisementKeywords); matched {
		return fallbackResult(models.DetectionAdvertisement, 0.70, "advertisement keyword match: "+kw)
	}
	if hasURL(lowered) && containsAny(lowered, "가입", "신청", "문의", "register", "sign up", "order") {
		return fallbackResult(models.DetectionAdvertisement, 0.70, "solicitation link detected by fallback rules")
	}
	if matched, kw := matchKeyword(lowered, conflictKeywords); matched {
		return fallbackResult(models.DetectionConflict, 0.60, "conflict keyword match: "+kw)
	}

	return fallbackResult(models.DetectionNormal, 0.50, "no abnormal pattern matched by fallback rules")
}

func fallbackResult(detected models.DetectionType, confidence float64, reasoning string) *models.AnalysisResult {
	return &models.AnalysisResult{
		DetectedType: detected,
		Confidence:   models.ClampConfidence(confidence),
		Reasoning:    reasoning,
		UsedFallback: true,
	}
}

func matchKeyword(content string, keywords []string) (bool, string) {
	for _, kw := range keywords {
		if strings.Contains(content, kw) {
			return true, kw
		}
	}
	return false, ""
}

func containsAny(content string, terms ...string) bool {
	for _, term := range terms {
		if strings.Contains(content, term) {
			return true
		}
	}
	return false
}

func hasURL(content string) bool {
	return strings.Contains(content, "http://") ||
		strings.Contains(content, "https://") ||
		strings.Contains(content, "www.")
}

// isRepeatFlood reports whether the message is one short fragment repeated
// over and over ("도배도배도배..."). The message is flood when some prefix of
// up to 8 runes, repeated, reproduces at least three full copies covering
// the entire message.
func isRepeatFlood(content string) bool {
	runes := []rune(content)
	if len(runes) < 6 {
		return false
	}

	maxUnit := len(runes) / 3
	if maxUnit > 8 {
		maxUnit = 8
	}

	for unit := 1; unit <= maxUnit; unit++ {
		if len(runes)%unit != 0 {
			continue
		}
		if repeatsThroughout(runes, unit) {
			return true
		}
	}
	return false
}

func repeatsThroughout(runes []rune, unit int) bool {
	for i := unit; i < len(runes); i++ {
		if runes[i] != runes[i%unit] {
			return false
		}
	}
	return true
}
