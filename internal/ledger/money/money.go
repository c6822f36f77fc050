package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Scale é o número de casas decimais mantidas em valores monetários.
const Scale int32 = 8

// Truncate corta o valor em Scale casas, nunca arredondando para cima.
func Truncate(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(Scale)
}

func IsPositive(d decimal.Decimal) bool { return d.GreaterThan(decimal.Zero) }

// Mode define para onde um pagamento é liquidado.
type Mode string

const (
	ModeWallet          Mode = "wallet"           // transferência on-chain para a carteira do usuário
	ModePlatformBalance Mode = "platform_balance" // crédito no saldo interno da plataforma
)

func (m Mode) Valid() bool { return m == ModeWallet || m == ModePlatformBalance }

// Destination é o destino de liquidação escolhido por operação.
type Destination struct {
	Mode    Mode   `json:"mode"`
	Address string `json:"address"`
}

// Resolve preenche defaults: sem endereço, usa o próprio dono; sem modo, carteira.
func (d Destination) Resolve(owner string) Destination {
	if d.Mode == "" {
		d.Mode = ModeWallet
	}
	if strings.TrimSpace(d.Address) == "" {
		d.Address = owner
	}
	return d
}

// Currencies é o conjunto fixo de moedas aceitas.
type Currencies map[string]struct{}

func NewCurrencies(codes ...string) Currencies {
	out := make(Currencies, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			out[c] = struct{}{}
		}
	}
	return out
}

func (c Currencies) Supports(code string) bool {
	_, ok := c[strings.ToUpper(code)]
	return ok
}
