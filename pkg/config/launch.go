package config

import (
	"fmt"
	"math"
	"strconv"

	"github.com/0xkatana/launchkit/pkg/types"
)

// LamportsPerSOL is the lamport denomination of one SOL.
const LamportsPerSOL = 1_000_000_000

// SOLToLamports converts a SOL amount to lamports.
func SOLToLamports(sol float64) uint64 {
	return uint64(math.Round(sol * LamportsPerSOL))
}

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSOL
}

// RouteMode selects how the funding router moves value from the master
// wallet to a destination.
type RouteMode string

const (
	// RouteDirect is a single master->destination transfer.
	RouteDirect RouteMode = "direct"
	// RouteMixing routes through a chain of ephemeral wallets.
	RouteMixing RouteMode = "mixing"
	// RouteMultiIntermediary is mixing with an independent chain per
	// destination.
	RouteMultiIntermediary RouteMode = "multi-intermediary"
)

// AutoBuyConfig schedules a delayed holder buy after launch success.
// SafetyThresholdLamports of 0 disables the front-run check.
type AutoBuyConfig struct {
	DelaySec                int
	SafetyThresholdLamports uint64
}

// HolderConfig describes one post-launch holder wallet.
type HolderConfig struct {
	BuyLamports uint64
	// PreFunded holders cover their own buy; the router skips them and the
	// budget excludes them.
	PreFunded bool
	AutoBuy   *AutoBuyConfig
	// AutoSellThresholdLamports arms the MEV guard sell rule; 0 leaves the
	// wallet unguarded.
	AutoSellThresholdLamports uint64
}

// TokenMeta is the on-chain metadata for the launched token.
type TokenMeta struct {
	Name   string
	Symbol string
	URI    string
}

// LaunchConfig is the immutable snapshot taken when a launch starts.
// Subsequent settings edits never affect an in-flight run: callers build a
// value, validate it once, and hand it to the state machine by value.
type LaunchConfig struct {
	Token TokenMeta

	CreatorBuyLamports uint64
	CreatorSelfFunded  bool

	// BundleBuys holds the per-wallet buy amount for each bundle wallet, in
	// creation order. Its length is the bundle wallet count.
	BundleBuys []uint64

	Holders []HolderConfig

	Route RouteMode
	// Hops is the intermediary chain length for mixing routes.
	Hops int

	JitoTipLamports      uint64
	LUTRentLamports      uint64
	SafetyBufferLamports uint64

	// SlippageBps pads every buy's max SOL cost. Funding, the budget, and
	// the pre-bundle balance gate all derive their amounts from this one
	// value, so a funded wallet always covers its gate demand.
	SlippageBps uint64

	// AutoSellConfirmationDelaySec is the debounce window between a volume
	// threshold crossing and the sell decision.
	AutoSellConfirmationDelaySec int
}

// DefaultLaunchConfig returns a config with conservative launch defaults.
// Wallet lists start empty; callers fill them from settings or flags.
func DefaultLaunchConfig() LaunchConfig {
	return LaunchConfig{
		CreatorBuyLamports:           SOLToLamports(0.5),
		Route:                        RouteDirect,
		JitoTipLamports:              SOLToLamports(0.001),
		LUTRentLamports:              SOLToLamports(0.01),
		SafetyBufferLamports:         SOLToLamports(0.05),
		SlippageBps:                  1000,
		AutoSellConfirmationDelaySec: 12,
	}
}

// Settings-store key names. The external settings store is a flat string
// map; FromSettings maps these keys onto typed fields once, at launch start.
const (
	KeyDirectSendMode         = "DIRECT_SEND_MODE"
	KeyUseMixingWallets       = "USE_MIXING_WALLETS"
	KeyNumIntermediaryHops    = "NUM_INTERMEDIARY_HOPS"
	KeyBundleWalletCount      = "BUNDLE_WALLET_COUNT"
	KeyHolderWalletCount      = "HOLDER_WALLET_COUNT"
	KeyAutoSellLaunchCooldown = "AUTO_SELL_MEV_LAUNCH_COOLDOWN"
	KeyCreatorBuySOL          = "CREATOR_BUY_SOL"
	KeyCreatorSelfFunded      = "CREATOR_SELF_FUNDED"
	KeyBundleBuySOL           = "BUNDLE_BUY_SOL"
	KeyHolderBuySOL           = "HOLDER_BUY_SOL"
	KeyJitoTipSOL             = "JITO_TIP_SOL"
	KeySlippageBps            = "SLIPPAGE_BPS"
	KeyLUTRentSOL             = "LUT_RENT_SOL"
	KeySafetyBufferSOL        = "SAFETY_BUFFER_SOL"
	KeyAutoBuyDelaySec        = "AUTO_BUY_DELAY_SEC"
	KeyAutoBuySafetySOL       = "AUTO_BUY_SAFETY_SOL"
	KeyAutoSellThresholdSOL   = "AUTO_SELL_THRESHOLD_SOL"
	KeyTokenName              = "TOKEN_NAME"
	KeyTokenSymbol            = "TOKEN_SYMBOL"
	KeyTokenURI               = "TOKEN_URI"
)

// FromSettings builds a LaunchConfig from the external settings store's flat
// key map. Unknown keys are ignored; missing keys keep defaults. The result
// still has to pass Validate.
func FromSettings(settings map[string]string) (LaunchConfig, error) {
	cfg := DefaultLaunchConfig()

	getBool := func(key string) (bool, bool, error) {
		raw, ok := settings[key]
		if !ok {
			return false, false, nil
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return false, false, fmt.Errorf("setting %s: %w", key, err)
		}
		return v, true, nil
	}
	getInt := func(key string) (int, bool, error) {
		raw, ok := settings[key]
		if !ok {
			return 0, false, nil
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, false, fmt.Errorf("setting %s: %w", key, err)
		}
		return v, true, nil
	}
	getSOL := func(key string) (uint64, bool, error) {
		raw, ok := settings[key]
		if !ok {
			return 0, false, nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, false, fmt.Errorf("setting %s: %w", key, err)
		}
		return SOLToLamports(v), true, nil
	}

	direct, hasDirect, err := getBool(KeyDirectSendMode)
	if err != nil {
		return cfg, err
	}
	mixing, hasMixing, err := getBool(KeyUseMixingWallets)
	if err != nil {
		return cfg, err
	}
	switch {
	case hasMixing && mixing:
		cfg.Route = RouteMixing
	case hasDirect && direct:
		cfg.Route = RouteDirect
	}

	if hops, ok, err := getInt(KeyNumIntermediaryHops); err != nil {
		return cfg, err
	} else if ok {
		cfg.Hops = hops
		if hops > 1 && cfg.Route == RouteMixing {
			cfg.Route = RouteMultiIntermediary
		}
	}

	if v, ok, err := getSOL(KeyCreatorBuySOL); err != nil {
		return cfg, err
	} else if ok {
		cfg.CreatorBuyLamports = v
	}
	if v, ok, err := getBool(KeyCreatorSelfFunded); err != nil {
		return cfg, err
	} else if ok {
		cfg.CreatorSelfFunded = v
	}
	if v, ok, err := getSOL(KeyJitoTipSOL); err != nil {
		return cfg, err
	} else if ok {
		cfg.JitoTipLamports = v
	}
	if v, ok, err := getInt(KeySlippageBps); err != nil {
		return cfg, err
	} else if ok {
		if v < 0 {
			return cfg, fmt.Errorf("setting %s: must be >= 0", KeySlippageBps)
		}
		cfg.SlippageBps = uint64(v)
	}
	if v, ok, err := getSOL(KeyLUTRentSOL); err != nil {
		return cfg, err
	} else if ok {
		cfg.LUTRentLamports = v
	}
	if v, ok, err := getSOL(KeySafetyBufferSOL); err != nil {
		return cfg, err
	} else if ok {
		cfg.SafetyBufferLamports = v
	}
	if v, ok, err := getInt(KeyAutoSellLaunchCooldown); err != nil {
		return cfg, err
	} else if ok {
		cfg.AutoSellConfirmationDelaySec = v
	}

	bundleCount, _, err := getInt(KeyBundleWalletCount)
	if err != nil {
		return cfg, err
	}
	bundleBuy, _, err := getSOL(KeyBundleBuySOL)
	if err != nil {
		return cfg, err
	}
	for i := 0; i < bundleCount; i++ {
		cfg.BundleBuys = append(cfg.BundleBuys, bundleBuy)
	}

	holderCount, _, err := getInt(KeyHolderWalletCount)
	if err != nil {
		return cfg, err
	}
	holderBuy, _, err := getSOL(KeyHolderBuySOL)
	if err != nil {
		return cfg, err
	}
	autoBuyDelay, hasAutoBuy, err := getInt(KeyAutoBuyDelaySec)
	if err != nil {
		return cfg, err
	}
	autoBuySafety, _, err := getSOL(KeyAutoBuySafetySOL)
	if err != nil {
		return cfg, err
	}
	autoSellThreshold, _, err := getSOL(KeyAutoSellThresholdSOL)
	if err != nil {
		return cfg, err
	}
	for i := 0; i < holderCount; i++ {
		h := HolderConfig{
			BuyLamports:               holderBuy,
			AutoSellThresholdLamports: autoSellThreshold,
		}
		if hasAutoBuy {
			h.AutoBuy = &AutoBuyConfig{
				DelaySec:                autoBuyDelay,
				SafetyThresholdLamports: autoBuySafety,
			}
		}
		cfg.Holders = append(cfg.Holders, h)
	}

	cfg.Token = TokenMeta{
		Name:   settings[KeyTokenName],
		Symbol: settings[KeyTokenSymbol],
		URI:    settings[KeyTokenURI],
	}

	return cfg, nil
}

// Validate checks the config once, at launch start. Execution never re-reads
// settings piecemeal after this.
func (c LaunchConfig) Validate() error {
	if c.Token.Name == "" {
		return types.NewValidationError("token.name", "required")
	}
	if c.Token.Symbol == "" {
		return types.NewValidationError("token.symbol", "required")
	}
	if c.CreatorBuyLamports == 0 {
		return types.NewValidationError("creator_buy", "must be greater than 0")
	}
	for i, amt := range c.BundleBuys {
		if amt == 0 {
			return types.NewValidationError(fmt.Sprintf("bundle_buys[%d]", i), "must be greater than 0")
		}
	}
	for i, h := range c.Holders {
		if h.BuyLamports == 0 {
			return types.NewValidationError(fmt.Sprintf("holders[%d].buy", i), "must be greater than 0")
		}
		if h.AutoBuy != nil && h.AutoBuy.DelaySec < 0 {
			return types.NewValidationError(fmt.Sprintf("holders[%d].auto_buy.delay_sec", i), "must be >= 0")
		}
	}
	switch c.Route {
	case RouteDirect:
	case RouteMixing, RouteMultiIntermediary:
		if c.Hops < 1 {
			return types.NewValidationError("hops", fmt.Sprintf("%s route requires at least one hop", c.Route))
		}
	default:
		return types.NewValidationError("route", fmt.Sprintf("unknown route mode %q", c.Route))
	}
	if c.AutoSellConfirmationDelaySec < 0 {
		return types.NewValidationError("auto_sell_confirmation_delay_sec", "must be >= 0")
	}
	return nil
}

// PaddedBuy returns a buy amount with the slippage allowance applied. Every
// budgeted or funded buy uses this padded figure.
func (c LaunchConfig) PaddedBuy(lamports uint64) uint64 {
	return lamports + lamports*c.SlippageBps/10_000
}

// TotalRequired returns the lamports the master wallet must cover: the
// padded creator buy (unless self-funded), every padded bundle buy, every
// padded non-pre-funded holder buy, the Jito tip, lookup table rent, and the
// safety buffer.
func (c LaunchConfig) TotalRequired() uint64 {
	var total uint64
	if !c.CreatorSelfFunded {
		total += c.PaddedBuy(c.CreatorBuyLamports)
	}
	for _, amt := range c.BundleBuys {
		total += c.PaddedBuy(amt)
	}
	for _, h := range c.Holders {
		if !h.PreFunded {
			total += c.PaddedBuy(h.BuyLamports)
		}
	}
	total += c.JitoTipLamports
	total += c.LUTRentLamports
	total += c.SafetyBufferLamports
	return total
}

// CheckMasterBalance rejects the launch before any transfer is attempted if
// the master balance cannot cover the budget. The returned error carries the
// exact shortfall.
func (c LaunchConfig) CheckMasterBalance(masterLamports uint64) error {
	required := c.TotalRequired()
	if masterLamports < required {
		return types.ShortfallError{Required: required, Available: masterLamports}
	}
	return nil
}
