package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/guildops/tierkeeper/pkg/cli/config"
	"github.com/guildops/tierkeeper/pkg/domain/types"
)

func writePolicy(t *testing.T, body string) *config.Policy {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.toml")
	gt.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return config.NewPolicyForTest(path)
}

const minimalPolicy = `
[[guild]]
id = "G1"
name = "Main Guild"
reference_org = "acme"

[guild.roles]
main = ["Member"]
affiliate = ["Affiliate"]
`

func TestPolicyMinimalFileGetsDefaults(t *testing.T) {
	policy := gt.R1(writePolicy(t, minimalPolicy).Configure()).NoError(t)

	guilds := policy.GuildConfigs()
	gt.Array(t, guilds).Length(1)
	gt.Value(t, guilds[0].ID).Equal(types.GuildID("G1"))
	gt.Value(t, guilds[0].ReferenceOrg).Equal("acme")
	gt.Value(t, guilds[0].ManagedRoles[types.TierMain]).Equal([]string{"Member"})

	bcfg := policy.BreakerConfig()
	gt.Value(t, bcfg.Threshold).Equal(3)
	gt.Value(t, bcfg.ResetTimeout).Equal(300 * time.Second)
	gt.Value(t, bcfg.BackoffMax).Equal(3600 * time.Second)

	qcfg := policy.QueueConfig()
	gt.Value(t, qcfg.Workers).Equal(2)
	gt.Value(t, qcfg.MaxAttempts).Equal(3)
	gt.Value(t, qcfg.RetryBase).Equal(500 * time.Millisecond)
	gt.Value(t, qcfg.Burst).Equal(45)

	ccfg := policy.CadenceConfig()
	gt.Value(t, ccfg.DaysByTier[types.TierMain]).Equal(14)
	gt.Value(t, ccfg.DaysByTier[types.TierAffiliate]).Equal(7)
	gt.Value(t, ccfg.DaysByTier[types.TierNonMember]).Equal(3)
	gt.Value(t, ccfg.JitterHours).Equal(6.0)
	gt.Value(t, ccfg.BackoffBase).Equal(30 * time.Minute)
	gt.Value(t, ccfg.BackoffMax).Equal(24 * time.Hour)
}

func TestPolicyOverrides(t *testing.T) {
	policy := gt.R1(writePolicy(t, minimalPolicy+`
[cadence]
main_days = 30
jitter_hours = 2.5

[limits.verification]
max_attempts = 10
window_secs = 60

[queue]
workers = 4
ops_per_sec = 100.0

[breaker]
threshold = 5
`).Configure()).NoError(t)

	ccfg := policy.CadenceConfig()
	gt.Value(t, ccfg.DaysByTier[types.TierMain]).Equal(30)
	gt.Value(t, ccfg.DaysByTier[types.TierAffiliate]).Equal(7)
	gt.Value(t, ccfg.JitterHours).Equal(2.5)

	qcfg := policy.QueueConfig()
	gt.Value(t, qcfg.Workers).Equal(4)
	gt.Value(t, qcfg.Burst).Equal(100)

	gt.Value(t, policy.BreakerConfig().Threshold).Equal(5)
	gt.Array(t, policy.LimiterOptions()).Length(2)
}

func TestPolicyFullGuildEntry(t *testing.T) {
	policy := gt.R1(writePolicy(t, `
[[guild]]
id = "G1"
name = "Main Guild"
reference_org = "acme"
nickname_template = "{moniker} [{tier}]"
log_channel = "C012345"

[guild.roles]
main = ["Member", "Verified"]
affiliate = ["Affiliate"]
non_member = ["Guest"]
`).Configure()).NoError(t)

	g := policy.GuildConfigs()[0]
	gt.Value(t, g.NicknameTemplate).Equal("{moniker} [{tier}]")
	gt.Value(t, g.LogChannel).Equal(types.ChannelID("C012345"))
	gt.Value(t, g.ManagedRoles[types.TierNonMember]).Equal([]string{"Guest"})
}

func TestPolicyValidation(t *testing.T) {
	cases := map[string]string{
		"no guilds": `
[queue]
workers = 2
`,
		"missing reference org": `
[[guild]]
id = "G1"
name = "Broken"
`,
		"unknown tier key": `
[[guild]]
id = "G1"
reference_org = "acme"

[guild.roles]
platinum = ["Shiny"]
`,
		"duplicate guild id": minimalPolicy + `
[[guild]]
id = "G1"
reference_org = "other"
`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := writePolicy(t, body).Configure()
			gt.Error(t, err)
		})
	}
}

func TestPolicyFileErrors(t *testing.T) {
	_, err := config.NewPolicyForTest("/no/such/policy.toml").Configure()
	gt.Error(t, err)

	_, err = writePolicy(t, `guild = "not a table"`).Configure()
	gt.Error(t, err)
}
