package main

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmerrifield20/bfx/pkg/client"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Account information",
}

func init() {
	authCmd.AddCommand(userInfoCmd, walletsCmd, keyPermissionCmd, ledgerCmd, depositAddressCmd)

	ledgerCmd.Flags().StringVar(&ledgerCategory, "category", "", "exchange, interest, transfer, trading-fee or a numeric code")
	ledgerHistory.register(ledgerCmd)

	depositAddressCmd.Flags().StringVar(&depositWallet, "wallet", string(client.WalletExchange), "exchange, margin or funding")
	depositAddressCmd.Flags().StringVar(&depositMethod, "method", "", "deposit network, e.g. bitcoin or tetherusl")
	_ = depositAddressCmd.MarkFlagRequired("method")
}

var userInfoCmd = &cobra.Command{
	Use:   "user-info",
	Short: "Show the account profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAuthClient()
		if err != nil {
			return err
		}
		u, err := c.UserInfo(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd, u, func(w io.Writer) {
			row(w, "ID", u.ID)
			row(w, "USERNAME", u.Username)
			row(w, "EMAIL", u.Email)
			row(w, "CREATED", u.Created)
			row(w, "VERIFIED", u.Verified)
			row(w, "VERIFICATION LEVEL", u.VerificationLevel)
			row(w, "TIMEZONE", u.Timezone)
			row(w, "LOCALE", u.Locale)
			row(w, "2FA", strings.Join(u.TwoFactorModes, ","))
			row(w, "LAST LOGIN", u.LastLogin)
		})
	},
}

var walletsCmd = &cobra.Command{
	Use:   "wallets",
	Short: "List wallet balances",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAuthClient()
		if err != nil {
			return err
		}
		wallets, err := c.Wallets(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd, wallets, func(w io.Writer) {
			row(w, "WALLET", "CURRENCY", "BALANCE", "AVAILABLE", "UNSETTLED INTEREST")
			for _, wl := range wallets {
				row(w, string(wl.Type), wl.Currency, wl.Balance, wl.Available, wl.UnsettledInterest)
			}
		})
	},
}

var keyPermissionCmd = &cobra.Command{
	Use:   "key-permission",
	Short: "Show what the API key may read and write",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAuthClient()
		if err != nil {
			return err
		}
		kp, err := c.KeyPermissions(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd, kp, func(w io.Writer) {
			row(w, "SCOPE", "READ", "WRITE")
			for _, s := range kp.Scopes() {
				row(w, s, kp[s].Read, kp[s].Write)
			}
		})
	},
}

var (
	ledgerCategory string
	ledgerHistory  historyFlags
)

var ledgerCmd = &cobra.Command{
	Use:     "ledger CCY",
	Short:   "List balance movements in one currency",
	Example: "  bfx auth ledger USD --category interest --limit 50",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := client.LedgerParams{}
		if ledgerCategory != "" {
			cat, err := client.ParseLedgerCategory(ledgerCategory)
			if err != nil {
				return err
			}
			p.Category = cat
		}
		hp, err := ledgerHistory.params()
		if err != nil {
			return err
		}
		p.HistoryParams = hp

		c, err := newAuthClient()
		if err != nil {
			return err
		}
		entries, err := c.Ledgers(cmd.Context(), strings.ToUpper(args[0]), p)
		if err != nil {
			return err
		}
		return render(cmd, entries, func(w io.Writer) {
			row(w, "ID", "TIME", "WALLET", "AMOUNT", "BALANCE", "DESCRIPTION")
			for _, e := range entries {
				row(w, e.ID, e.Time, e.Wallet, e.Amount, e.Balance, e.Description)
			}
		})
	},
}

var (
	depositWallet string
	depositMethod string
)

var depositAddressCmd = &cobra.Command{
	Use:     "deposit-address",
	Short:   "Show the deposit address for a wallet and network",
	Example: "  bfx auth deposit-address --wallet exchange --method bitcoin",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		wallet, err := client.ParseWalletType(depositWallet)
		if err != nil {
			return err
		}
		method, err := client.ParseDepositMethod(depositMethod)
		if err != nil {
			return err
		}
		c, err := newAuthClient()
		if err != nil {
			return err
		}
		addrs, err := c.DepositAddress(cmd.Context(), wallet, method)
		if err != nil {
			return err
		}
		return render(cmd, addrs, func(w io.Writer) {
			row(w, "METHOD", "CURRENCY", "ADDRESS", "POOL ADDRESS")
			for _, a := range addrs {
				row(w, a.Method, a.Currency, a.Address, a.PoolAddress)
			}
		})
	},
}
