// Scenario configuration — YAML parameters for a simulation run.
// Malformed parameters are fatal for the whole run, never recovered per-firm.
package sim

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every parameter of a scenario. It is parsed and validated once
// at startup and distributed by value to the sector and each firm; nothing
// mutates it after construction.
type Config struct {
	Name    string `yaml:"name"`
	Periods int    `yaml:"periods"`
	Seed    int64  `yaml:"seed"`

	Sector     SectorConfig     `yaml:"sector"`
	Technology TechnologyConfig `yaml:"technology"`
	Sales      SalesConfig      `yaml:"sales"`
	Finance    FinanceConfig    `yaml:"finance"`
	Labor      LaborConfig      `yaml:"labor"`
}

// SectorConfig sizes the firm population.
type SectorConfig struct {
	Firms           int   `yaml:"firms"`
	InitialCapital  int64 `yaml:"initial_capital"`
	ReplaceBankrupt bool  `yaml:"replace_bankrupt"`
	// ContributionPerShareholder is the fixed amount solicited from each
	// candidate during recapitalization and initial seeding.
	ContributionPerShareholder int64 `yaml:"contribution_per_shareholder"`
	// RecapRetries bounds the candidate-sampling rounds during
	// recapitalization before the firm is liquidated instead.
	RecapRetries int `yaml:"recap_retries"`
}

// TechnologyConfig holds the production-function constants shared by every
// firm. Immutable after construction.
type TechnologyConfig struct {
	InitialMachines      int     `yaml:"initial_machines"`
	Productivity         int     `yaml:"productivity"`           // finished units per machine per period
	MachineLifetimeMean  int     `yaml:"machine_lifetime_mean"`  // periods
	MachineLifetimeStdev float64 `yaml:"machine_lifetime_stdev"` // periods
	InputPerMachine      int64   `yaml:"input_per_machine"`      // investment-goods value per new machine
	ProductionStages     int     `yaml:"production_stages"`      // pipeline length
	OverheadRatio        float64 `yaml:"overhead_ratio"`         // overhead workers per machine worker
}

// SalesConfig drives the inventory-signal pricing rule.
type SalesConfig struct {
	OfferDivisor    int     `yaml:"offer_divisor"`
	Sigma1          float64 `yaml:"sigma1"` // below: raise price, expand target
	Sigma2          float64 `yaml:"sigma2"` // above: cut price, shrink target
	PriceFlex       float64 `yaml:"price_flex"`
	InitialPrice    float64 `yaml:"initial_price"`
	MinMarkup       float64 `yaml:"min_markup"`
	TargetIncrement int     `yaml:"target_increment"`
	TargetFloor     int     `yaml:"target_floor"`
}

// FinanceConfig holds the credit and capital-adequacy parameters.
type FinanceConfig struct {
	CapitalRatio      float64 `yaml:"capital_ratio"`       // subscribed capital / assets floor
	RiskPremium       float64 `yaml:"risk_premium"`        // loading on offered credit prices
	OperatingHorizon  int     `yaml:"operating_horizon"`   // periods
	InvestmentHorizon int     `yaml:"investment_horizon"`  // periods
	MaxFinancingShare float64 `yaml:"max_financing_share"` // financing cost cap, share of expenditure
}

// LaborConfig is the narrow slice of the labor side the firm core needs.
type LaborConfig struct {
	Wage int64 `yaml:"wage"`
}

// LoadConfig reads and validates a scenario file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("scenario: read %s: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("scenario: %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes and validates a scenario payload.
func ParseConfig(data []byte) (Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Config{}, fmt.Errorf("scenario: payload is empty")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("scenario: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every parameter a firm or the sector will divide by,
// loop over, or compare against.
func (c Config) Validate() error {
	if c.Periods <= 0 {
		return fmt.Errorf("scenario: periods must be positive, got %d", c.Periods)
	}
	if c.Sector.Firms <= 0 {
		return fmt.Errorf("scenario: sector.firms must be positive, got %d", c.Sector.Firms)
	}
	if c.Sector.InitialCapital <= 0 {
		return fmt.Errorf("scenario: sector.initial_capital must be positive, got %d", c.Sector.InitialCapital)
	}
	if c.Sector.ContributionPerShareholder <= 0 {
		return fmt.Errorf("scenario: sector.contribution_per_shareholder must be positive, got %d", c.Sector.ContributionPerShareholder)
	}
	if c.Sector.RecapRetries < 0 {
		return fmt.Errorf("scenario: sector.recap_retries must not be negative, got %d", c.Sector.RecapRetries)
	}
	if c.Technology.InitialMachines <= 0 {
		return fmt.Errorf("scenario: technology.initial_machines must be positive, got %d", c.Technology.InitialMachines)
	}
	if c.Technology.Productivity <= 0 {
		return fmt.Errorf("scenario: technology.productivity must be positive, got %d", c.Technology.Productivity)
	}
	if c.Technology.MachineLifetimeMean <= 0 {
		return fmt.Errorf("scenario: technology.machine_lifetime_mean must be positive, got %d", c.Technology.MachineLifetimeMean)
	}
	if c.Technology.MachineLifetimeStdev < 0 {
		return fmt.Errorf("scenario: technology.machine_lifetime_stdev must not be negative")
	}
	if c.Technology.InputPerMachine <= 0 {
		return fmt.Errorf("scenario: technology.input_per_machine must be positive, got %d", c.Technology.InputPerMachine)
	}
	if c.Technology.ProductionStages <= 0 {
		return fmt.Errorf("scenario: technology.production_stages must be positive, got %d", c.Technology.ProductionStages)
	}
	if c.Technology.OverheadRatio < 0 || c.Technology.OverheadRatio >= 1 {
		return fmt.Errorf("scenario: technology.overhead_ratio must be in [0,1), got %g", c.Technology.OverheadRatio)
	}
	if c.Sales.OfferDivisor < 1 {
		return fmt.Errorf("scenario: sales.offer_divisor must be at least 1, got %d", c.Sales.OfferDivisor)
	}
	if c.Sales.Sigma1 <= 0 || c.Sales.Sigma2 <= c.Sales.Sigma1 {
		return fmt.Errorf("scenario: sales thresholds need 0 < sigma1 < sigma2, got %g and %g", c.Sales.Sigma1, c.Sales.Sigma2)
	}
	if c.Sales.PriceFlex <= 0 {
		return fmt.Errorf("scenario: sales.price_flex must be positive, got %g", c.Sales.PriceFlex)
	}
	if c.Sales.InitialPrice < 1 {
		return fmt.Errorf("scenario: sales.initial_price must be at least 1 unit of account, got %g", c.Sales.InitialPrice)
	}
	if c.Sales.MinMarkup < 0 {
		return fmt.Errorf("scenario: sales.min_markup must not be negative, got %g", c.Sales.MinMarkup)
	}
	if c.Sales.TargetIncrement <= 0 {
		return fmt.Errorf("scenario: sales.target_increment must be positive, got %d", c.Sales.TargetIncrement)
	}
	if c.Sales.TargetFloor < 0 {
		return fmt.Errorf("scenario: sales.target_floor must not be negative, got %d", c.Sales.TargetFloor)
	}
	if c.Finance.CapitalRatio < 0 || c.Finance.CapitalRatio > 1 {
		return fmt.Errorf("scenario: finance.capital_ratio must be in [0,1], got %g", c.Finance.CapitalRatio)
	}
	if c.Finance.RiskPremium < 0 {
		return fmt.Errorf("scenario: finance.risk_premium must not be negative, got %g", c.Finance.RiskPremium)
	}
	if c.Finance.OperatingHorizon < 1 || c.Finance.InvestmentHorizon < 1 {
		return fmt.Errorf("scenario: finance horizons must be at least 1 period")
	}
	if c.Finance.MaxFinancingShare <= 0 || c.Finance.MaxFinancingShare > 1 {
		return fmt.Errorf("scenario: finance.max_financing_share must be in (0,1], got %g", c.Finance.MaxFinancingShare)
	}
	if c.Labor.Wage <= 0 {
		return fmt.Errorf("scenario: labor.wage must be positive, got %d", c.Labor.Wage)
	}
	return nil
}

// DefaultConfig returns the baseline scenario used by the driver when no
// scenario file is given, and by tests that need a valid parameter set.
func DefaultConfig() Config {
	return Config{
		Name:    "baseline",
		Periods: 200,
		Seed:    42,
		Sector: SectorConfig{
			Firms:                      10,
			InitialCapital:             200_000,
			ReplaceBankrupt:            true,
			ContributionPerShareholder: 20_000,
			RecapRetries:               3,
		},
		Technology: TechnologyConfig{
			InitialMachines:      10,
			Productivity:         100,
			MachineLifetimeMean:  40,
			MachineLifetimeStdev: 8,
			InputPerMachine:      10_000,
			ProductionStages:     4,
			OverheadRatio:        0.1,
		},
		Sales: SalesConfig{
			OfferDivisor:    4,
			Sigma1:          0.4,
			Sigma2:          0.8,
			PriceFlex:       0.04,
			InitialPrice:    10,
			MinMarkup:       0.05,
			TargetIncrement: 50,
			TargetFloor:     100,
		},
		Finance: FinanceConfig{
			CapitalRatio:      0.5,
			RiskPremium:       0.02,
			OperatingHorizon:  1,
			InvestmentHorizon: 12,
			MaxFinancingShare: 0.10,
		},
		Labor: LaborConfig{
			Wage: 50,
		},
	}
}
