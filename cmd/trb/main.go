package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/spf13/cobra"

	"github.com/troubadour-audio/troubadour/internal/adapters/clock"
	"github.com/troubadour-audio/troubadour/internal/adapters/config"
	"github.com/troubadour-audio/troubadour/internal/adapters/idgen"
	"github.com/troubadour-audio/troubadour/internal/adapters/mqtt"
	"github.com/troubadour-audio/troubadour/internal/adapters/output"
	"github.com/troubadour-audio/troubadour/internal/core"
	"github.com/troubadour-audio/troubadour/pkg/trb"
)

type app struct {
	service core.Service
	printer output.Printer
	json    bool
	guild   int64
	timeout time.Duration
}

func main() {
	root := &cobra.Command{
		Use:   "trb",
		Short: "Troubadour player CLI",
	}

	var (
		broker    string
		topicBase string
		identity  string
		guild     int64
		timeout   time.Duration
		jsonOut   bool
		tlsCA     string
		tlsCert   string
		tlsKey    string
		userOpt   string
		passOpt   string
	)

	root.PersistentFlags().StringVarP(&broker, "broker", "b", "", "MQTT broker URL")
	root.PersistentFlags().StringVar(&topicBase, "topic-base", trb.BaseTopic, "MQTT topic base")
	root.PersistentFlags().StringVarP(&identity, "identity", "i", "", "requester identity")
	root.PersistentFlags().Int64VarP(&guild, "guild", "g", 0, "guild id")
	root.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 5*time.Second, "command timeout")
	root.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output json")
	root.PersistentFlags().StringVar(&tlsCA, "tls-ca", "", "TLS CA path")
	root.PersistentFlags().StringVar(&tlsCert, "tls-cert", "", "TLS cert path")
	root.PersistentFlags().StringVar(&tlsKey, "tls-key", "", "TLS key path")
	root.PersistentFlags().StringVar(&userOpt, "user", "", "MQTT username")
	root.PersistentFlags().StringVar(&passOpt, "pass", "", "MQTT password")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		identity = defaultIdentity(identity, cfg.Identity)
		if broker == "" {
			broker = cfg.Broker
		}
		if topicBase == trb.BaseTopic && cfg.TopicBase != "" {
			topicBase = cfg.TopicBase
		}
		if guild == 0 {
			guild = cfg.GuildID
		}
		if broker == "" {
			return errors.New("broker is required (set --broker or config)")
		}

		clientID := fmt.Sprintf("trb-%d", time.Now().UnixNano())
		mqttClient, err := mqtt.NewClient(mqtt.Options{
			BrokerURL: broker,
			ClientID:  clientID,
			Username:  userOpt,
			Password:  passOpt,
			TLSCA:     tlsCA,
			TLSCert:   tlsCert,
			TLSKey:    tlsKey,
			TopicBase: topicBase,
			Timeout:   timeout,
		})
		if err != nil {
			return err
		}

		service := core.Service{
			Broker: mqttClient,
			Clock:  clock.Clock{},
			IDGen:  idgen.Generator{},
			Config: core.Config{
				Broker:    broker,
				Identity:  identity,
				TopicBase: topicBase,
				GuildID:   guild,
			},
		}

		var printer output.Printer
		if jsonOut {
			printer = output.JSONPrinter{}
		} else {
			printer = output.HumanPrinter{}
		}

		cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, &app{
			service: service,
			printer: printer,
			json:    jsonOut,
			guild:   guild,
			timeout: timeout,
		}))
		return nil
	}

	root.AddCommand(connectCommand())
	root.AddCommand(disconnectCommand())
	root.AddCommand(playCommand())
	root.AddCommand(skipCommand())
	root.AddCommand(nextCommand())
	root.AddCommand(loopCommand())
	root.AddCommand(unloopCommand())
	root.AddCommand(statusCommand())
	root.AddCommand(queueCommand())
	root.AddCommand(removeCommand())
	root.AddCommand(resetCommand())
	root.AddCommand(watchCommand())

	if err := root.Execute(); err != nil {
		os.Exit(core.ExitCode(err))
	}
}

type appKey struct{}

func fromContext(cmd *cobra.Command) *app {
	val := cmd.Context().Value(appKey{})
	if val == nil {
		return nil
	}
	return val.(*app)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

func defaultIdentity(flagVal string, cfgVal string) string {
	if flagVal != "" {
		return flagVal
	}
	if cfgVal != "" {
		return cfgVal
	}
	usr, _ := user.Current()
	host, _ := os.Hostname()
	if usr != nil && host != "" {
		return fmt.Sprintf("%s@%s", usr.Username, host)
	}
	if host != "" {
		return host
	}
	return "trb-unknown"
}
