package cli

import (
	"time"

	"github.com/flare-foundation/casper-deployer/pkg/config"
)

type Args struct {
	ConfigFile string `arg:"--config,env:CONFIG_FILE" help:"TOML config file"`

	Deploy     *DeployCmd     `arg:"subcommand:deploy" help:"broadcast a signed deploy from JSON"`
	Transfer   *TransferCmd   `arg:"subcommand:transfer" help:"create a transfer deploy"`
	Undelegate *UndelegateCmd `arg:"subcommand:undelegate" help:"create an undelegate deploy"`
	Balance    *BalanceCmd    `arg:"subcommand:balance" help:"show account balances"`
	Era        *EraCmd        `arg:"subcommand:era" help:"locate the current era"`
	Validators *ValidatorsCmd `arg:"subcommand:validators" help:"list validators by stake and connected peers"`
}

func (Args) Version() string {
	return "casper-deployer " + config.ReadBuildVersion().String()
}

func (Args) Description() string {
	return "Builds, signs and broadcasts Casper staking deploys."
}

// WaitOptions gate the broadcast. Waits run in the order listed.
type WaitOptions struct {
	Wait         bool           `arg:"--wait" help:"wait until the deploy timestamp has passed"`
	NextEra      bool           `arg:"--next-era" help:"wait for the era after the deploy timestamp"`
	BalanceAware bool           `arg:"--balance-aware" help:"wait until the signer balance exceeds the deploy amount"`
	WaitTimeout  *time.Duration `arg:"--wait-timeout" help:"give up waiting after this long, 0 waits forever (default from config)"`
}

type DeployCmd struct {
	JSON string `arg:"--json" help:"signed deploy JSON"`
	File string `arg:"--file" help:"file with the signed deploy JSON"`
	RPC  string `arg:"--rpc" help:"node RPC URL (default by chain name)"`
	WaitOptions
}

type BuildOptions struct {
	Network   string `arg:"--network,required" help:"chain name: casper or casper-test"`
	Pub       string `arg:"--pub" default:"./public_key.pem" help:"path to public key"`
	Pk        string `arg:"--pk" default:"./secret_key.pem" help:"path to private key"`
	TTL       string `arg:"--ttl" help:"time to live, e.g. 30m, 6h or milliseconds (default from config)"`
	GasPrice  uint64 `arg:"--gasprice" help:"gas price (default from config)"`
	Timestamp int64  `arg:"--timestamp" help:"deploy timestamp in unix milliseconds (default now)"`
	Broadcast bool   `arg:"--broadcast" help:"broadcast to the network instead of printing the signed deploy"`
	CleanJSON bool   `arg:"--cleanjson" help:"print the signed deploy as plain JSON, not escaped for the shell"`
	RPC       string `arg:"--rpc" help:"node RPC URL, used with --broadcast"`
	WaitOptions
}

type TransferCmd struct {
	Amount  string `arg:"--amount,required" help:"amount in motes (1 CSPR = 1000000000 motes)"`
	To      string `arg:"--to,required" help:"recipient public key (hex)"`
	Memo    uint64 `arg:"--memo" help:"transfer id"`
	Payment string `arg:"--payment" help:"payment in motes (default from config)"`
	BuildOptions
}

type UndelegateCmd struct {
	Amount    string `arg:"--amount,required" help:"amount in motes (1 CSPR = 1000000000 motes)"`
	Validator string `arg:"--validator,required" help:"validator public key (hex) to undelegate from"`
	Contract  string `arg:"--contract" help:"staking contract hash (default by network)"`
	Payment   string `arg:"--payment" help:"payment in motes (default from config)"`
	BuildOptions
}

type BalanceCmd struct {
	Network string   `arg:"--network,required" help:"chain name: casper or casper-test"`
	Address []string `arg:"--address,required" help:"account public keys (hex)"`
	RPC     string   `arg:"--rpc" help:"node RPC URL"`
}

type EraCmd struct {
	Network string `arg:"--network,required" help:"chain name: casper or casper-test"`
	RPC     string `arg:"--rpc" help:"node RPC URL"`
}

type ValidatorsCmd struct {
	Network string `arg:"--network,required" help:"chain name: casper or casper-test"`
	Top     int    `arg:"--top" default:"10" help:"number of validators to show, 0 for all"`
	RPC     string `arg:"--rpc" help:"node RPC URL"`
}
