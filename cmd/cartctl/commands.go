package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"storefront/internal/domain"
	"storefront/internal/importer"
)

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "show",
		Short:   "Show the cart",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return a.printCart()
		},
	}
}

func newAddCmd(a *app) *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "add <productId>",
		Short: "Add one unit of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bp, err := domain.ParseBillingPeriod(period)
			if err != nil {
				return err
			}
			product, err := a.products.Get(cmd.Context(), domain.ID(args[0]))
			if err != nil {
				return fmt.Errorf("look up product %s: %w", args[0], err)
			}
			if err := a.cart.AddItem(cmd.Context(), *product, bp); err != nil {
				return err
			}
			return a.printCart()
		},
	}
	cmd.Flags().StringVarP(&period, "period", "p", string(domain.Monthly), "billing period (month or year)")
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "update <productId> <quantity>",
		Short: "Set the quantity of a line; 0 removes it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bp, err := domain.ParseBillingPeriod(period)
			if err != nil {
				return err
			}
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return &domain.ValidationError{Field: "quantity", Reason: "must be a whole number"}
			}
			if err := a.cart.UpdateQuantity(cmd.Context(), domain.ID(args[0]), bp, qty); err != nil {
				return err
			}
			return a.printCart()
		},
	}
	cmd.Flags().StringVarP(&period, "period", "p", string(domain.Monthly), "billing period (month or year)")
	return cmd
}

func newRemoveCmd(a *app) *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:     "remove <productId>",
		Short:   "Remove one unit; the line goes with its last unit",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bp, err := domain.ParseBillingPeriod(period)
			if err != nil {
				return err
			}
			if err := a.cart.RemoveItem(cmd.Context(), domain.ID(args[0]), bp); err != nil {
				return err
			}
			return a.printCart()
		},
	}
	cmd.Flags().StringVarP(&period, "period", "p", string(domain.Monthly), "billing period (month or year)")
	return cmd
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the local cart",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			a.cart.ClearCart()
			return a.printCart()
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv|->",
		Short: "Add saved lines from a CSV file (productId,billingPeriod,quantity)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			n, err := importer.NewCSVImporter(in, a.products, a.cart).Run(cmd.Context())
			fmt.Fprintf(a.out, "imported %d lines\n", n)
			if err != nil {
				return err
			}
			return a.printCart()
		},
	}
}

func newLoginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in; the guest cart is replaced by your server cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("STOREFRONT_PASSWORD")
			}
			err := a.auth.Login(cmd.Context(), domain.Credentials{Email: email, Password: password})
			if err != nil {
				var remoteErr *domain.RemoteError
				if errors.As(err, &remoteErr) && remoteErr.AuthFailure() {
					return errors.New("login failed: wrong email or password")
				}
				return err
			}
			fmt.Fprintf(a.out, "signed in as %s\n", a.auth.User().Email)
			return a.printCart()
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (default $STOREFRONT_PASSWORD)")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and start an empty guest cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.auth.Logout(cmd.Context())
			fmt.Fprintln(a.out, "signed out")
			return nil
		},
	}
}

func newCheckoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "checkout",
		Short: "Open a payment session for the server cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := a.cart.Checkout(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "continue to payment: %s\n", url)
			return nil
		},
	}
}

func (a *app) printCart() error {
	st := a.cart.Snapshot()
	if u := a.auth.User(); u != nil {
		fmt.Fprintf(a.out, "cart (%s, %s)\n", st.Mode, u.Email)
	} else {
		fmt.Fprintf(a.out, "cart (%s)\n", st.Mode)
	}
	if len(st.Lines) == 0 {
		fmt.Fprintln(a.out, "  empty")
	} else {
		w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "  PRODUCT\tNAME\tPERIOD\tQTY\tUNIT\tTOTAL")
		for _, line := range st.Lines {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%d\t%s\t%s\n",
				line.ProductID, line.DisplayName, line.BillingPeriod, line.Quantity,
				line.UnitPrice.StringFixed(2), line.LineTotal().StringFixed(2))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	fmt.Fprintf(a.out, "items %d  subtotal %s  tax %s  total %s\n",
		st.TotalItemCount, st.Subtotal.StringFixed(2), st.Tax.StringFixed(2), st.Total.StringFixed(2))
	if st.Error != "" {
		fmt.Fprintf(a.out, "error: %s\n", st.Error)
	}
	return nil
}
