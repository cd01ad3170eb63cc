package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/vitwit/storefront/types"
	"github.com/vitwit/storefront/utils"
)

func buyCmd() *cobra.Command {
	var (
		usePoints bool
		wait      time.Duration
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "buy [item]",
		Short: "Buy a catalog item with the configured wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.flush()

			w, err := a.wallet()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a.shop.ConnectWallet(ctx, w)
			a.shop.SetUsePoints(usePoints)

			updates := make(chan types.State, 16)
			sub := a.shop.Subscribe(updates)
			defer sub.Unsubscribe()
			stop := make(chan struct{})
			defer close(stop)
			go printProgress(updates, stop)

			attempt, err := a.shop.Buy(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Sent %s, reference %s\n", attempt.Signature, attempt.Reference)

			if wait > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, wait)
				defer cancel()
			}

			done, err := a.shop.Await(ctx, attempt.ID)
			if err != nil {
				return err
			}

			st := a.shop.State()
			if asJSON {
				out, err := utils.SerializeState(&st)
				if err != nil {
					return err
				}
				fmt.Println(string(out))
			} else {
				fmt.Println(st.Message)
			}
			if done.Status != types.StatusConfirmed {
				return fmt.Errorf("purchase %s", done.Status)
			}
			if !asJSON {
				fmt.Printf("Confirmed in slot %d\n", done.Confirmation.Slot)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&usePoints, "use-points", "p", false, "Pay partly with loyalty points")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Print the final state as JSON")
	cmd.Flags().DurationVar(&wait, "wait", 0, "Stop waiting for confirmation after this long (0 uses the poll timeout)")

	return cmd
}

func printProgress(updates <-chan types.State, stop <-chan struct{}) {
	last := types.StatusNone
	for {
		select {
		case <-stop:
			return
		case s := <-updates:
			if s.Attempt.Status != last {
				last = s.Attempt.Status
				fmt.Printf("  %s\n", last)
			}
		}
	}
}
