package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"pda-client-sol/internal/cache"
	"pda-client-sol/internal/config"
	"pda-client-sol/internal/consts"
	"pda-client-sol/internal/keys"
	"pda-client-sol/internal/logic/codec"
	"pda-client-sol/internal/logic/pda"
	"pda-client-sol/internal/logic/programs/pdas"
	"pda-client-sol/internal/logic/programs/system"
	"pda-client-sol/internal/logic/txn"
	"pda-client-sol/internal/pkg/types"
	"pda-client-sol/internal/service"
	"pda-client-sol/internal/svc"

	zerosvc "github.com/zeromicro/go-zero/core/service"
)

var errUsage = errors.New("bad arguments")

type command struct {
	args string
	help string
	run  func(ctx context.Context, sc *svc.ClientContext, args []string, out io.Writer) error
}

var commands = map[string]command{
	"keygen":             {"<path>", "generate a keypair file and print its mnemonic", runKeygen},
	"balance":            {"[address]", "show the balance of an address (default: payer)", runBalance},
	"airdrop":            {"[lamports]", "fund the payer up to the configured reserve, or by an exact amount", runAirdrop},
	"transfer":           {"<to> <lamports>", "transfer lamports from the payer", runTransfer},
	"counter":            {"run | increment <acc> | add <acc> <n> | show <acc>", "drive the counter and calculator programs", runCounter},
	"pda-derive":         {"<program> <seed>...", "derive a program address; seeds are text, pk:<base58> or hex:<bytes>", runPdaDerive},
	"pda-init":           {"", "create the payer's address and profile accounts", runPdaInit},
	"pda-update-address": {"<address>", "overwrite the payer's address record", runPdaUpdateAddress},
	"pda-update-profile": {"<name> <date> <month> <year>", "overwrite the payer's profile record", runPdaUpdateProfile},
	"pda-show":           {"[wallet]", "read the address and profile records of a wallet (default: payer)", runPdaShow},
	"decode":             {"<schema.yaml> <schema> <account>", "decode account data with a schema loaded from a YAML file", runDecode},
	"recheck":            {"", "re-poll unresolved transactions from the journal", runRecheck},
	"watch":              {"[account]...", "poll accounts and log every change (default: watch.accounts)", runWatch},
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func printConfirmation(out io.Writer, label string, c txn.Confirmation) {
	fmt.Fprintf(out, "%s: signature=%s outcome=%s slot=%d polls=%d elapsed=%s", label, c.Signature, c.Outcome, c.Slot, c.Polls, c.Elapsed.Round(time.Millisecond))
	if c.Reason != "" {
		fmt.Fprintf(out, " reason=%q", c.Reason)
	}
	fmt.Fprintln(out)
}

func parsePubkey(s string) (types.Pubkey, error) {
	pk, err := types.TryPubkeyFromBase58(s)
	if err != nil {
		return types.Pubkey{}, fmt.Errorf("%w: %q is not an address: %v", errUsage, s, err)
	}
	return pk, nil
}

func parseUint(s string, bits int) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errUsage, err)
	}
	return n, nil
}

func addressOrPayer(sc *svc.ClientContext, args []string) (types.Pubkey, error) {
	switch len(args) {
	case 0:
		return sc.Payer.PublicKey(), nil
	case 1:
		return parsePubkey(args[0])
	default:
		return types.Pubkey{}, errUsage
	}
}

func runKeygen(_ context.Context, _ *svc.ClientContext, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errUsage
	}
	mnemonic, err := keys.NewMnemonic()
	if err != nil {
		return err
	}
	kp, err := keys.FromMnemonic(mnemonic, "")
	if err != nil {
		return err
	}
	if err := kp.SaveFile(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(out, "pubkey: %s\nmnemonic: %s\n", kp.PublicKey(), mnemonic)
	return nil
}

func runBalance(ctx context.Context, sc *svc.ClientContext, args []string, out io.Writer) error {
	addr, err := addressOrPayer(sc, args)
	if err != nil {
		return err
	}
	bal, err := sc.Transport.GetBalance(ctx, addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d lamports (%.9f SOL)\n", addr, bal, float64(bal)/float64(consts.LamportsPerSOL))
	return nil
}

func runAirdrop(ctx context.Context, sc *svc.ClientContext, args []string, out io.Writer) error {
	payer := sc.Payer.PublicKey()
	switch len(args) {
	case 0:
		res, err := sc.Funder.EnsureFunded(ctx, payer)
		if err != nil {
			return err
		}
		if res.Airdrop.IsZero() {
			fmt.Fprintf(out, "%s already holds %d lamports (required %d)\n", payer, res.Balance, res.Required)
		} else {
			fmt.Fprintf(out, "airdrop %s: requested=%d balance=%d required=%d\n", res.Airdrop, res.Requested, res.Balance, res.Required)
		}
		return nil
	case 1:
		lamports, err := parseUint(args[0], 64)
		if err != nil {
			return err
		}
		sig, err := sc.Funder.Airdrop(ctx, payer, lamports)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "airdrop %s: %d lamports to %s\n", sig, lamports, payer)
		return nil
	default:
		return errUsage
	}
}

func runTransfer(ctx context.Context, sc *svc.ClientContext, args []string, out io.Writer) error {
	if len(args) != 2 {
		return errUsage
	}
	to, err := parsePubkey(args[0])
	if err != nil {
		return err
	}
	lamports, err := parseUint(args[1], 64)
	if err != nil {
		return err
	}
	ix, err := system.Transfer(sc.Payer.PublicKey(), to, lamports)
	if err != nil {
		return err
	}
	tx, err := txn.NewTransaction(sc.Payer.PublicKey(), ix)
	if err != nil {
		return err
	}
	c, err := sc.Manager.SendAndConfirm(ctx, tx.WithLabel("transfer"), sc.Payer)
	printConfirmation(out, "transfer", c)
	return err
}

func runCounter(ctx context.Context, sc *svc.ClientContext, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	payer := sc.Payer
	switch args[0] {
	case "run":
		// 与示例脚本一致：检查程序、备足余额、建账户、加一、读回
		if len(args) != 1 {
			return errUsage
		}
		if err := sc.Reader.CheckProgram(ctx, sc.Counter.Program()); err != nil {
			return err
		}
		if _, err := sc.Funder.EnsureFunded(ctx, payer.PublicKey()); err != nil {
			return err
		}
		acc, c, err := sc.Counter.CreateDataAccount(ctx, payer)
		printConfirmation(out, "create "+acc.String(), c)
		if err != nil {
			return err
		}
		c, err = sc.Counter.Increment(ctx, payer, acc)
		printConfirmation(out, "increment", c)
		if err != nil {
			return err
		}
		return showCounter(ctx, sc, acc, out)
	case "increment":
		if len(args) != 2 {
			return errUsage
		}
		acc, err := parsePubkey(args[1])
		if err != nil {
			return err
		}
		c, err := sc.Counter.Increment(ctx, payer, acc)
		printConfirmation(out, "increment", c)
		if err != nil {
			return err
		}
		return showCounter(ctx, sc, acc, out)
	case "add":
		if len(args) != 3 {
			return errUsage
		}
		acc, err := parsePubkey(args[1])
		if err != nil {
			return err
		}
		n, err := parseUint(args[2], 32)
		if err != nil {
			return err
		}
		if err := sc.Reader.CheckProgram(ctx, sc.Calculator.Program()); err != nil {
			return err
		}
		c, err := sc.Calculator.Add(ctx, payer, acc, uint32(n))
		printConfirmation(out, "add", c)
		if err != nil {
			return err
		}
		return showCounter(ctx, sc, acc, out)
	case "show":
		if len(args) != 2 {
			return errUsage
		}
		acc, err := parsePubkey(args[1])
		if err != nil {
			return err
		}
		return showCounter(ctx, sc, acc, out)
	default:
		return errUsage
	}
}

func showCounter(ctx context.Context, sc *svc.ClientContext, acc types.Pubkey, out io.Writer) error {
	g, err := sc.Counter.Read(ctx, acc)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s has been greeted %d time(s)\n", acc, g.Counter)
	return nil
}

// parseSeed 文本原样使用；pk: 前缀解析为 32 字节公钥，hex: 前缀解析为原始字节
func parseSeed(s string) ([]byte, error) {
	switch {
	case strings.HasPrefix(s, "pk:"):
		pk, err := parsePubkey(strings.TrimPrefix(s, "pk:"))
		if err != nil {
			return nil, err
		}
		return pk.Bytes(), nil
	case strings.HasPrefix(s, "hex:"):
		b, err := hex.DecodeString(strings.TrimPrefix(s, "hex:"))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errUsage, err)
		}
		return b, nil
	default:
		return []byte(s), nil
	}
}

func runPdaDerive(_ context.Context, _ *svc.ClientContext, args []string, out io.Writer) error {
	if len(args) < 2 {
		return errUsage
	}
	program, err := parsePubkey(args[0])
	if err != nil {
		return err
	}
	seeds := make([][]byte, 0, len(args)-1)
	for _, s := range args[1:] {
		seed, err := parseSeed(s)
		if err != nil {
			return err
		}
		seeds = append(seeds, seed)
	}
	d, err := pda.Derive(program, seeds...)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "address=%s bump=%d\n", d.Address, d.Bump)
	return nil
}

func runPdaInit(ctx context.Context, sc *svc.ClientContext, args []string, out io.Writer) error {
	if len(args) != 0 {
		return errUsage
	}
	if err := sc.Reader.CheckProgram(ctx, sc.Pdas.Programs().Ecom); err != nil {
		return err
	}
	if _, err := sc.Funder.EnsureFunded(ctx, sc.Payer.PublicKey()); err != nil {
		return err
	}
	c, err := sc.Pdas.Initialize(ctx, sc.Payer)
	printConfirmation(out, "pda-init", c)
	return err
}

func runPdaUpdateAddress(ctx context.Context, sc *svc.ClientContext, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errUsage
	}
	c, err := sc.Pdas.UpdateAddress(ctx, sc.Payer, args[0])
	printConfirmation(out, "pda-update-address", c)
	return err
}

func runPdaUpdateProfile(ctx context.Context, sc *svc.ClientContext, args []string, out io.Writer) error {
	if len(args) != 4 {
		return errUsage
	}
	var nums [3]int32
	for i, s := range args[1:] {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		nums[i] = int32(n)
	}
	profile := pdas.Profile{Name: args[0], Date: nums[0], Month: nums[1], Year: nums[2]}
	c, err := sc.Pdas.UpdateProfile(ctx, sc.Payer, profile)
	printConfirmation(out, "pda-update-profile", c)
	return err
}

func runPdaShow(ctx context.Context, sc *svc.ClientContext, args []string, out io.Writer) error {
	wallet, err := addressOrPayer(sc, args)
	if err != nil {
		return err
	}
	p := sc.Pdas.Programs()
	addrPDA, err := p.AddressPDA(wallet)
	if err != nil {
		return err
	}
	profilePDA, err := p.ProfilePDA(wallet)
	if err != nil {
		return err
	}

	address, err := sc.Pdas.ReadAddress(ctx, wallet)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "address PDA %s (bump %d): %q\n", addrPDA.Address, addrPDA.Bump, address)

	profile, err := sc.Pdas.ReadProfile(ctx, wallet)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "profile PDA %s (bump %d): name=%q date=%d month=%d year=%d\n",
		profilePDA.Address, profilePDA.Bump, profile.Name, profile.Date, profile.Month, profile.Year)
	return nil
}

func runDecode(ctx context.Context, sc *svc.ClientContext, args []string, out io.Writer) error {
	if len(args) != 3 {
		return errUsage
	}
	src, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	schemas, err := codec.LoadSchemas(src)
	if err != nil {
		return err
	}
	schema, ok := schemas[args[1]]
	if !ok {
		return fmt.Errorf("%w: schema %q not found in %s", errUsage, args[1], args[0])
	}
	addr, err := parsePubkey(args[2])
	if err != nil {
		return err
	}

	rec, err := sc.Reader.ReadRecord(ctx, addr, schema)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s (%s):\n", addr, schema.Name)
	for _, f := range schema.Fields {
		if b, ok := rec[f.Name].([]byte); ok {
			fmt.Fprintf(out, "  %s=%q\n", f.Name, codec.CString(b))
			continue
		}
		fmt.Fprintf(out, "  %s=%v\n", f.Name, rec[f.Name])
	}
	return nil
}

func runRecheck(ctx context.Context, sc *svc.ClientContext, args []string, out io.Writer) error {
	if len(args) != 0 {
		return errUsage
	}
	entries, err := sc.Manager.Recheck(ctx)
	for _, e := range entries {
		fmt.Fprintf(out, "%s %-10s %-24s submitted=%s", e.Signature, e.Status, e.Label, e.SubmittedAt.Format("2006-01-02 15:04:05"))
		if e.Reason != "" {
			fmt.Fprintf(out, " reason=%q", e.Reason)
		}
		fmt.Fprintln(out)
	}
	if err == nil && len(entries) == 0 {
		fmt.Fprintln(out, "no unresolved transactions")
	}
	return err
}

func runWatch(ctx context.Context, sc *svc.ClientContext, args []string, out io.Writer) error {
	wc := sc.Config.WatchConf
	if len(args) > 0 {
		wc = config.WatchConfig{Accounts: args, IntervalS: wc.IntervalS}
	}
	if len(wc.Accounts) == 0 {
		return errUsage
	}
	watcher, err := service.NewAccountWatchService(&wc, sc.Transport, cache.NewAccountCache(), func(addr types.Pubkey, snap cache.AccountSnapshot) {
		if snap.Missing {
			fmt.Fprintf(out, "[height %d] %s: not found\n", snap.Height, addr)
			return
		}
		fmt.Fprintf(out, "[height %d] %s: lamports=%d owner=%s data=%s\n", snap.Height, addr, snap.Lamports, snap.Owner, hex.EncodeToString(snap.Data))
	})
	if err != nil {
		return err
	}

	sg := zerosvc.NewServiceGroup()
	sg.Add(watcher)
	go sg.Start()

	<-ctx.Done()
	sg.Stop()
	return nil
}
