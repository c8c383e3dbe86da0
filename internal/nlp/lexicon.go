package nlp

import "github.com/quantpulse/quantpulse/internal/models"

// Lexicon word lists. Matching is on lowercase punctuation-stripped tokens,
// so every entry here must be a single lowercase word.

var positiveWords = map[string]struct{}{
	"gain": {}, "gains": {}, "growth": {}, "profit": {}, "profits": {},
	"surge": {}, "surges": {}, "rally": {}, "rallies": {}, "record": {},
	"beat": {}, "beats": {}, "upgrade": {}, "upgraded": {}, "strong": {},
	"outperform": {}, "bullish": {}, "soar": {}, "soars": {}, "soared": {},
	"jump": {}, "jumps": {}, "jumped": {}, "rise": {}, "rises": {}, "rose": {},
	"positive": {}, "exceed": {}, "exceeds": {}, "exceeded": {}, "win": {},
	"wins": {}, "success": {}, "successful": {}, "boom": {}, "breakthrough": {},
	"expansion": {}, "improve": {}, "improves": {}, "improved": {},
	"momentum": {}, "optimistic": {}, "recovery": {}, "rebound": {},
}

var negativeWords = map[string]struct{}{
	"loss": {}, "losses": {}, "decline": {}, "declines": {}, "declined": {},
	"drop": {}, "drops": {}, "dropped": {}, "fall": {}, "falls": {}, "fell": {},
	"plunge": {}, "plunges": {}, "plunged": {}, "crash": {}, "crashes": {},
	"miss": {}, "misses": {}, "missed": {}, "downgrade": {}, "downgraded": {},
	"weak": {}, "bearish": {}, "underperform": {}, "slump": {}, "slumps": {},
	"negative": {}, "fraud": {}, "lawsuit": {}, "investigation": {},
	"bankruptcy": {}, "bankrupt": {}, "default": {}, "layoff": {},
	"layoffs": {}, "recall": {}, "fine": {}, "fined": {}, "penalty": {},
	"risk": {}, "risks": {}, "warning": {}, "warn": {}, "warns": {},
	"cut": {}, "cuts": {}, "concern": {}, "concerns": {}, "fear": {},
	"fears": {}, "scandal": {}, "probe": {}, "delisted": {},
}

// negationWords flip the polarity of a sentiment hit within the following
// negationWindow tokens.
var negationWords = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "without": {},
	"neither": {}, "nor": {}, "cannot": {}, "denies": {}, "denied": {},
}

const negationWindow = 3

// Severity modifiers. Each intensifier adds +0.15 (capped at +0.30 total);
// each dampener subtracts 0.10 (capped at -0.20 total).
var intensifierWords = map[string]struct{}{
	"major": {}, "massive": {}, "significant": {}, "critical": {},
	"unprecedented": {}, "severe": {}, "huge": {}, "dramatic": {},
	"urgent": {}, "emergency": {},
}

var dampenerWords = map[string]struct{}{
	"minor": {}, "small": {}, "slight": {}, "modest": {}, "limited": {},
	"possible": {}, "potential": {}, "rumored": {}, "unconfirmed": {},
}

const (
	intensifierStep = 0.15
	intensifierCap  = 0.30
	dampenerStep    = 0.10
	dampenerCap     = 0.20
)

// eventKeywords maps each event type to its detection keyword set.
var eventKeywords = map[models.EventType]map[string]struct{}{
	models.EventEarnings: {
		"earnings": {}, "revenue": {}, "eps": {}, "quarterly": {},
		"guidance": {}, "forecast": {}, "results": {},
	},
	models.EventMerger: {
		"merger": {}, "merge": {}, "merging": {}, "combination": {},
	},
	models.EventAcquisition: {
		"acquisition": {}, "acquire": {}, "acquires": {}, "acquired": {},
		"takeover": {}, "buyout": {},
	},
	models.EventBankruptcy: {
		"bankruptcy": {}, "bankrupt": {}, "insolvency": {}, "insolvent": {},
		"liquidation": {}, "restructuring": {},
	},
	models.EventRegulatory: {
		"regulator": {}, "regulatory": {}, "sec": {}, "investigation": {},
		"probe": {}, "lawsuit": {}, "fine": {}, "fined": {}, "antitrust": {},
		"compliance": {}, "subpoena": {}, "fraud": {},
	},
	models.EventProductLaunch: {
		"launch": {}, "launches": {}, "launched": {}, "unveil": {},
		"unveils": {}, "unveiled": {}, "release": {}, "releases": {},
		"announce": {}, "introduces": {},
	},
	models.EventLeadershipChange: {
		"ceo": {}, "cfo": {}, "resign": {}, "resigns": {}, "resigned": {},
		"appoint": {}, "appoints": {}, "appointed": {}, "successor": {},
		"steps": {}, "retire": {}, "retires": {},
	},
}

// eventBaseSeverity is each type's severity floor before keyword and
// modifier adjustments.
var eventBaseSeverity = map[models.EventType]float64{
	models.EventEarnings:         0.40,
	models.EventMerger:           0.55,
	models.EventAcquisition:      0.55,
	models.EventBankruptcy:       0.80,
	models.EventRegulatory:       0.60,
	models.EventProductLaunch:    0.35,
	models.EventLeadershipChange: 0.45,
}
