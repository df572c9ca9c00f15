package commands

import (
	"bufio"
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/ledger"
)

// LedgerCmd groups ledger inspection commands
var LedgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and verify the signed decision ledger",
	Long: `Inspect and verify the signed decision ledger.

Each line is timestamp|price|auxiliary|jobId|signature. The public key is
taken from --pubkey (hex or did:key) or derived from ledger.key_path.

Examples:
  sentinel ledger verify ledger.log
  sentinel ledger verify ledger.log --pubkey did:key:z6Mk...
  sentinel ledger ls ledger.log --last 20`,
}

var ledgerVerifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Verify every ledger entry",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLedgerVerify,
}

var ledgerLsCmd = &cobra.Command{
	Use:   "ls [file]",
	Short: "List ledger entries",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLedgerLs,
}

var (
	ledgerPubKey string
	ledgerLast   int
)

func init() {
	ledgerVerifyCmd.Flags().StringVar(&ledgerPubKey, "pubkey", "", "Public key as hex or did:key (default: from ledger.key_path)")
	ledgerLsCmd.Flags().StringVar(&ledgerPubKey, "pubkey", "", "Public key used to mark entries valid")
	ledgerLsCmd.Flags().IntVar(&ledgerLast, "last", 50, "Show only the last N entries (0 = all)")

	LedgerCmd.AddCommand(ledgerVerifyCmd)
	LedgerCmd.AddCommand(ledgerLsCmd)
}

// ledgerTarget resolves the ledger file and public key from args, flags and config.
func ledgerTarget(args []string, requireKey bool) (string, ed25519.PublicKey, error) {
	var path, keyPath string
	if cfg, err := loadConfig(); err == nil {
		path, keyPath = cfg.Ledger.Path, cfg.Ledger.KeyPath
	}
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return "", nil, errors.WithHint(errors.New("no ledger file given"), "pass a file or set ledger.path")
	}

	if ledgerPubKey != "" {
		pub, err := ledger.ParsePublicKey(ledgerPubKey)
		return path, pub, err
	}
	if keyPath != "" {
		if _, err := os.Stat(keyPath); err == nil {
			signer, _, err := ledger.LoadOrCreateSigner(keyPath)
			if err != nil {
				return "", nil, err
			}
			return path, signer.PublicKey(), nil
		}
	}
	if requireKey {
		return "", nil, errors.WithHint(errors.New("no public key available"), "pass --pubkey or set ledger.key_path to an existing key")
	}
	return path, nil, nil
}

func runLedgerVerify(cmd *cobra.Command, args []string) error {
	path, pub, err := ledgerTarget(args, true)
	if err != nil {
		return err
	}

	n, err := ledger.VerifyFile(path, pub)
	if err != nil {
		pterm.Error.Printfln("%d entries verified before failure", n)
		return err
	}
	pterm.Success.Printfln("%d entries verified in %s (key %s)", n, path, ledger.EncodeDIDKey(pub))
	return nil
}

func runLedgerLs(cmd *cobra.Command, args []string) error {
	path, pub, err := ledgerTarget(args, false)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open ledger %s", path)
	}
	defer f.Close()

	var rows [][]string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		entry, err := ledger.ParseEntry(line)
		if err != nil {
			rows = append(rows, []string{"-", "-", "-", "-", "malformed"})
			continue
		}
		status := "unchecked"
		if pub != nil {
			status = "invalid"
			if entry.Verify(pub) {
				status = "valid"
			}
		}
		rows = append(rows, []string{
			entry.Timestamp.Local().Format(time.DateTime),
			fmt.Sprintf("%.4f", entry.Price),
			fmt.Sprintf("%+.4f", entry.Auxiliary),
			entry.JobID,
			status,
		})
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "failed to read ledger %s", path)
	}

	if ledgerLast > 0 && len(rows) > ledgerLast {
		rows = rows[len(rows)-ledgerLast:]
	}
	data := append(pterm.TableData{{"Time", "Price", "Theta", "Job", "Signature"}}, rows...)
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
