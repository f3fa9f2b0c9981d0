package config

import (
	"testing"
	"time"

	"pda-client-sol/internal/consts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/conf"
)

const sample = `
logger:
  format: json
  level: debug
rpc:
  endpoints:
    - https://rpc-a.example
    - https://rpc-b.example
  commitment: confirmed
  timeout_ms: 3000
  rate_limit_rps: 5
confirm:
  timeout_ms: 30000
  poll_interval_ms: 500
programs:
  calculator: 3Ff2JNLJTjK7irW7U79HkvZLsakXuTJKG115cAE2hijz
funding:
  signature_budget: 10
journal:
  redis_addr: 127.0.0.1:6379
  ttl_hours: 24
`

func TestLoadClientConfig(t *testing.T) {
	var c ClientConfig
	require.NoError(t, conf.LoadFromYamlBytes([]byte(sample), &c))

	assert.Equal(t, "json", c.LogConf.ToLogOption().Format)

	topt := c.RpcConf.ToTransportOption()
	assert.Equal(t, []string{"https://rpc-a.example", "https://rpc-b.example"}, topt.Endpoints)
	assert.Equal(t, "confirmed", topt.Commitment)
	assert.Equal(t, 5.0, topt.RateLimitRps)

	copt := c.ConfirmConf.ToConfirmOption()
	assert.Equal(t, 30*time.Second, copt.Timeout)
	assert.Equal(t, 500*time.Millisecond, copt.PollInterval)

	counter, err := c.ProgramsConf.CounterProgram()
	require.NoError(t, err)
	assert.Equal(t, consts.CounterProgram, counter)
	calc, err := c.ProgramsConf.CalculatorProgram()
	require.NoError(t, err)
	assert.Equal(t, consts.AddressProgram, calc)

	assert.Equal(t, uint64(10), c.FundingConf.ToFundingOption().SignatureBudget)
	assert.Equal(t, 24*time.Hour, c.JournalConf.TTL())
}

func TestDefaults(t *testing.T) {
	var c ClientConfig
	require.NoError(t, conf.LoadFromYamlBytes([]byte("logger:\n  level: info\n"), &c))

	assert.Equal(t, []string{consts.DevnetRPC}, c.RpcConf.ToTransportOption().Endpoints)

	calc, err := c.ProgramsConf.CalculatorProgram()
	require.NoError(t, err)
	assert.Equal(t, consts.CounterProgram, calc)

	p, err := c.ProgramsConf.ToPdasPrograms()
	require.NoError(t, err)
	assert.Equal(t, consts.EcomProgram, p.Ecom)
	assert.Equal(t, consts.AddressProgram, p.Address)
	assert.Equal(t, consts.ProfileProgram, p.Profile)

	c.ProgramsConf.Ecom = "not a key"
	_, err = c.ProgramsConf.ToPdasPrograms()
	assert.Error(t, err)
}
