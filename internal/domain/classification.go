package domain

import "fmt"

// MarketCondition is the classifier's read of overall market direction.
type MarketCondition string

const (
	ConditionBullMarket MarketCondition = "BULL_MARKET"
	ConditionBearMarket MarketCondition = "BEAR_MARKET"
	ConditionSideways   MarketCondition = "SIDEWAYS"
)

// String returns the string representation of MarketCondition.
func (c MarketCondition) String() string {
	return string(c)
}

// IsValid checks if the market condition is a valid value.
func (c MarketCondition) IsValid() bool {
	switch c {
	case ConditionBullMarket, ConditionBearMarket, ConditionSideways:
		return true
	}
	return false
}

// ParseMarketCondition decodes the wire form of MarketCondition.
func ParseMarketCondition(s string) (MarketCondition, error) {
	c := MarketCondition(s)
	if !c.IsValid() {
		return "", fmt.Errorf("unknown market condition %q", s)
	}
	return c, nil
}

// VolatilityRegime buckets the payload's volatility value.
type VolatilityRegime string

const (
	VolatilityLow     VolatilityRegime = "LOW"
	VolatilityMedium  VolatilityRegime = "MEDIUM"
	VolatilityHigh    VolatilityRegime = "HIGH"
	VolatilityExtreme VolatilityRegime = "EXTREME"
)

// String returns the string representation of VolatilityRegime.
func (v VolatilityRegime) String() string {
	return string(v)
}

// IsValid checks if the volatility regime is a valid value.
func (v VolatilityRegime) IsValid() bool {
	switch v {
	case VolatilityLow, VolatilityMedium, VolatilityHigh, VolatilityExtreme:
		return true
	}
	return false
}

// ParseVolatilityRegime decodes the wire form of VolatilityRegime.
func ParseVolatilityRegime(s string) (VolatilityRegime, error) {
	v := VolatilityRegime(s)
	if !v.IsValid() {
		return "", fmt.Errorf("unknown volatility regime %q", s)
	}
	return v, nil
}

// MarketSession is the trading session bucket for the analysis instant.
type MarketSession string

const (
	SessionPreMarket  MarketSession = "PRE_MARKET"
	SessionRegular    MarketSession = "REGULAR"
	SessionAfterHours MarketSession = "AFTER_HOURS"
	SessionClosed     MarketSession = "CLOSED"
)

// String returns the string representation of MarketSession.
func (s MarketSession) String() string {
	return string(s)
}

// IsValid checks if the market session is a valid value.
func (s MarketSession) IsValid() bool {
	switch s {
	case SessionPreMarket, SessionRegular, SessionAfterHours, SessionClosed:
		return true
	}
	return false
}

// ParseMarketSession decodes the wire form of MarketSession.
func ParseMarketSession(s string) (MarketSession, error) {
	m := MarketSession(s)
	if !m.IsValid() {
		return "", fmt.Errorf("unknown market session %q", s)
	}
	return m, nil
}

// VolumeProfile is the snapshot-level volume classification.
type VolumeProfile string

const (
	VolumeHigh    VolumeProfile = "HIGH"
	VolumeLow     VolumeProfile = "LOW"
	VolumeNormal  VolumeProfile = "NORMAL"
	VolumeUnknown VolumeProfile = "UNKNOWN"
)

// String returns the string representation of VolumeProfile.
func (v VolumeProfile) String() string {
	return string(v)
}

// IsValid checks if the volume profile is a valid value.
func (v VolumeProfile) IsValid() bool {
	switch v {
	case VolumeHigh, VolumeLow, VolumeNormal, VolumeUnknown:
		return true
	}
	return false
}

// ParseVolumeProfile decodes the wire form of VolumeProfile.
func ParseVolumeProfile(s string) (VolumeProfile, error) {
	v := VolumeProfile(s)
	if !v.IsValid() {
		return "", fmt.Errorf("unknown volume profile %q", s)
	}
	return v, nil
}

// TrendDirection is the dominant trend direction across timeframes.
type TrendDirection string

const (
	TrendUp      TrendDirection = "UP"
	TrendDown    TrendDirection = "DOWN"
	TrendFlat    TrendDirection = "FLAT"
	TrendUnknown TrendDirection = "UNKNOWN"
)

// String returns the string representation of TrendDirection.
func (t TrendDirection) String() string {
	return string(t)
}

// IsValid checks if the trend direction is a valid value.
func (t TrendDirection) IsValid() bool {
	switch t {
	case TrendUp, TrendDown, TrendFlat, TrendUnknown:
		return true
	}
	return false
}

// ParseTrendDirection decodes the wire form of TrendDirection.
func ParseTrendDirection(s string) (TrendDirection, error) {
	t := TrendDirection(s)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown trend direction %q", s)
	}
	return t, nil
}
