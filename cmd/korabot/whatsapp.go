package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"korabot/internal/channel"
	"korabot/internal/config"
)

func whatsappCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whatsapp",
		Short: "Manage the WhatsApp linked device",
	}
	cmd.AddCommand(pairCmd())
	cmd.AddCommand(unpairCmd())
	return cmd
}

func pairCmd() *cobra.Command {
	var pngPath string

	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Link korabot to a WhatsApp account by scanning a QR code",
		Long: `Writes the pairing QR code as a PNG. Scan it from
WhatsApp > Linked devices. The session is stored in channels.whatsmeow.deviceDbPath.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Read(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			dbPath := cfg.Channels.WhatsMeow.DeviceDBPath
			if pngPath == "" {
				pngPath = filepath.Join(filepath.Dir(dbPath), "whatsapp-qr.png")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := channel.OpenWhatsMeowClient(ctx, dbPath, logger)
			if err != nil {
				return err
			}
			if client.Store.ID != nil {
				fmt.Printf("Already paired as %s. Run 'korabot whatsapp unpair' first to link another account.\n", client.Store.ID.User)
				return nil
			}

			qrChan, err := client.GetQRChannel(ctx)
			if err != nil {
				return fmt.Errorf("qr channel: %w", err)
			}
			if err := client.Connect(); err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer client.Disconnect()

			for evt := range qrChan {
				switch evt.Event {
				case "code":
					if err := showQR(evt.Code, pngPath); err != nil {
						return err
					}
				case "success":
					fmt.Println("Paired. Enable channels.whatsmeow and run 'korabot serve'.")
					return nil
				default:
					if evt.Error != nil {
						return fmt.Errorf("pairing failed: %w", evt.Error)
					}
					if evt.Event == "timeout" {
						return fmt.Errorf("pairing timed out; run the command again")
					}
					logger.Info("pairing event", "event", evt.Event)
				}
			}
			return ctx.Err()
		},
	}

	cmd.Flags().StringVar(&pngPath, "png", "", "where to write the QR image (default: next to the device db)")
	return cmd
}

// showQR saves code as a PNG to open and scan.
func showQR(code, pngPath string) error {
	if err := os.MkdirAll(filepath.Dir(pngPath), 0o700); err != nil {
		return err
	}
	if err := qrcode.WriteFile(code, qrcode.Medium, 256, pngPath); err != nil {
		return fmt.Errorf("write qr png: %w", err)
	}
	fmt.Printf("Scan the QR code saved to %s (it refreshes every ~20s)\n", pngPath)
	return nil
}

func unpairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unpair",
		Short: "Log the linked device out and forget the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Read(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx := context.Background()
			client, err := channel.OpenWhatsMeowClient(ctx, cfg.Channels.WhatsMeow.DeviceDBPath, logger)
			if err != nil {
				return err
			}
			if client.Store.ID == nil {
				fmt.Println("Not paired.")
				return nil
			}
			if err := client.Connect(); err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer client.Disconnect()
			if err := client.Logout(ctx); err != nil {
				return fmt.Errorf("logout: %w", err)
			}
			fmt.Println("Unpaired.")
			return nil
		},
	}
}
