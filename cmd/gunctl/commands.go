package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/udisondev/gunnet/internal/auth"
	"github.com/udisondev/gunnet/internal/constants"
	"github.com/udisondev/gunnet/internal/crypto"
	"github.com/udisondev/gunnet/internal/protocol"
)

type rootOptions struct {
	headerKey string
	maxBlocks int
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "gunctl",
		Short:         "Offline tools for the gunnet packet format",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.headerKey, "header-key", "", "header cipher key (hex, default built-in)")
	root.PersistentFlags().IntVar(&opts.maxBlocks, "max-blocks", constants.DefaultMaxBlocks, "largest accepted payload, in 16-byte blocks")

	root.AddCommand(
		newDecodeHeaderCmd(opts),
		newEncodeHeaderCmd(opts),
		newDecryptCmd(opts),
		newDigestCmd(),
		newHandshakeCmd(),
	)
	return root
}

func (o *rootOptions) headerCodec() (*crypto.HeaderCodec, error) {
	key := crypto.DefaultHeaderKey
	if o.headerKey != "" {
		var err error
		if key, err = hex.DecodeString(o.headerKey); err != nil {
			return nil, fmt.Errorf("decoding --header-key: %w", err)
		}
	}
	cipher, err := crypto.NewHeaderCipher(key)
	if err != nil {
		return nil, err
	}
	return crypto.NewHeaderCodec(cipher), nil
}

// decodeHex accepts hex with optional spaces or colons between bytes.
func decodeHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "\n", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding hex %q: %w", s, err)
	}
	return b, nil
}

func newDecodeHeaderCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "decode-header <hex>",
		Short: "Deobfuscate an 8-byte header and print its fields and packet key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := decodeHex(args[0])
			if err != nil {
				return err
			}
			codec, err := opts.headerCodec()
			if err != nil {
				return err
			}
			key, h, err := codec.DecryptHeader(raw)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "random:   0x%02x\n", h.Random)
			fmt.Fprintf(out, "id:       0x%04x\n", uint16(h.ID))
			fmt.Fprintf(out, "sequence: %d\n", h.Sequence)
			fmt.Fprintf(out, "blocks:   %d (%d payload bytes)\n", h.Blocks, h.PayloadSize())
			fmt.Fprintf(out, "key:      %x\n", key)
			return nil
		},
	}
}

func newEncodeHeaderCmd(opts *rootOptions) *cobra.Command {
	var (
		random uint8
		id     uint16
		seq    uint16
		blocks uint16
	)
	cmd := &cobra.Command{
		Use:   "encode-header",
		Short: "Build and obfuscate a header",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			codec, err := opts.headerCodec()
			if err != nil {
				return err
			}
			h := crypto.Header{Random: random, ID: int16(id), Sequence: int16(seq), Blocks: int16(blocks)}
			raw, key, err := codec.EncryptHeader(h)
			if err != nil {
				return err
			}
			plain := crypto.MarshalHeader(h)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "plain: %x\n", plain)
			fmt.Fprintf(out, "raw:   %x\n", raw)
			fmt.Fprintf(out, "key:   %x\n", key)
			return nil
		},
	}
	cmd.Flags().Uint8Var(&random, "random", 0, "filler byte")
	cmd.Flags().Uint16Var(&id, "id", 0, "packet id")
	cmd.Flags().Uint16Var(&seq, "seq", 0, "sequence number")
	cmd.Flags().Uint16Var(&blocks, "blocks", 0, "payload size in 16-byte blocks")
	return cmd
}

func newDecryptCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <hex>",
		Short: "Split a captured stream into units and print each decrypted payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stream, err := decodeHex(args[0])
			if err != nil {
				return err
			}
			headers, err := opts.headerCodec()
			if err != nil {
				return err
			}
			framer := protocol.NewFramer(protocol.NewCodec(headers, opts.maxBlocks))
			framer.Feed(stream)

			out := cmd.OutOrStdout()
			for n := 0; ; n++ {
				pkt, err := framer.Next()
				if err != nil {
					if n == 0 || framer.Buffered() > 0 {
						return fmt.Errorf("unit %d: %w", n, err)
					}
					return nil
				}
				fmt.Fprintf(out, "#%d id=0x%04x seq=%d blocks=%d body=%x\n",
					n, uint16(pkt.Header.ID), pkt.Header.Sequence, pkt.Header.Blocks, pkt.Body)
			}
		},
	}
}

func newDigestCmd() *cobra.Command {
	var isHex bool
	cmd := &cobra.Command{
		Use:   "digest <input>",
		Short: "Print the 20-byte digest of input",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data := []byte(args[0])
			if isHex {
				var err error
				if data, err = decodeHex(args[0]); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%x\n", crypto.Hash(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&isHex, "hex", false, "input is hex encoded")
	return cmd
}

func newHandshakeCmd() *cobra.Command {
	var (
		role     string
		username string
		password string
		nonce    uint32
		version  uint32
	)
	cmd := &cobra.Command{
		Use:   "handshake",
		Short: "Build the client login handshake (static block ‖ session block) for a role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := auth.DefaultConfig(auth.Role(role))
			if err != nil {
				return err
			}
			codec, err := auth.NewCodec(cfg)
			if err != nil {
				return err
			}

			sum := crypto.Hash([]byte(password))
			cred := auth.Credentials{
				Role:     cfg.Role,
				Username: username,
				Magic:    nonce,
				Version:  version,
				Nickname: username,
			}
			switch cfg.Role {
			case auth.RoleLogin:
				cred.Password = password
			case auth.RoleBuddy:
				cred.PasswordHash = sum[:]
			}

			data, err := codec.Encode(cred, auth.MaterialFromDigest(cfg.KeyMaterial, sum[:]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%x\n", data)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(auth.RoleLogin), "login|buddy|channel|broker")
	cmd.Flags().StringVar(&username, "user", "", "account name")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().Uint32Var(&nonce, "nonce", 0, "client magic mixed into the session key")
	cmd.Flags().Uint32Var(&version, "version", 0, "client version")
	return cmd
}
