package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cppla/voicebloom/config"
	"github.com/cppla/voicebloom/repository"
	"github.com/cppla/voicebloom/storage"
	"github.com/cppla/voicebloom/transcode"
	"github.com/cppla/voicebloom/utils"
)

var rootCmd = &cobra.Command{
	Use:   "transcode [object paths...]",
	Short: "Convert stored recordings to MP3",
	Long: `transcode downloads recordings from object storage, converts them to
192 kbps MP3 with ffmpeg, uploads the result next to the original and points
the recordings table at the new object. Pass object paths, or --all-pending to
convert every recording still stored as webm.`,
	SilenceUsage: true,
	RunE:         run,
}

func main() {
	cobra.OnInitialize(initConfig)
	addFlags()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("VOICEBLOOM_TRANSCODE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addFlags() {
	f := rootCmd.Flags()
	f.String("config", "config/config.json", "application config file")
	f.Bool("all-pending", false, "convert every recording still stored as webm")
	f.Int("limit", 0, "maximum recordings to pick with --all-pending (0 means all)")
	f.String("ffmpeg", "", "ffmpeg binary (defaults to the configured path or PATH)")
	f.Bool("dry-run", false, "list the objects that would be converted")
	for _, name := range []string{"config", "all-pending", "limit", "ffmpeg", "dry-run"} {
		_ = viper.BindPFlag(name, f.Lookup(name))
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	allPending := viper.GetBool("all-pending")
	if len(args) == 0 && !allPending {
		return errors.New("pass object paths or --all-pending")
	}

	cfg, err := config.LoadFrom(viper.GetString("config"))
	if err != nil {
		return err
	}
	config.Set(cfg)
	if err := utils.InitLogger(cfg); err != nil {
		return err
	}
	defer func() { _ = utils.Logger.Sync() }()

	db, err := config.InitDatabase(repository.Models()...)
	if err != nil {
		return err
	}
	objects, err := storage.New(ctx, cfg)
	if err != nil {
		return err
	}

	bin := viper.GetString("ffmpeg")
	if bin == "" {
		bin = cfg.FFmpegPath
	}
	job := &transcode.Job{
		Objects:    objects,
		Recordings: repository.NewRecordingRepository(db),
		Runner:     transcode.FFmpeg{Path: bin},
		Logger:     utils.Logger,
	}

	paths := args
	if allPending {
		pending, err := job.Pending(ctx, viper.GetInt("limit"))
		if err != nil {
			return err
		}
		paths = append(paths, pending...)
	}
	if len(paths) == 0 {
		fmt.Println("nothing to convert")
		return nil
	}

	if viper.GetBool("dry-run") {
		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Source", "Target"})
		for _, p := range paths {
			tw.AppendRow(table.Row{p, transcode.TargetPath(p)})
		}
		tw.Render()
		return nil
	}

	results := job.ConvertAll(ctx, paths)
	printResults(results)
	if n := transcode.Failed(results); n > 0 {
		return fmt.Errorf("%d of %d conversions failed", n, len(results))
	}
	return nil
}

func printResults(results []transcode.Result) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Source", "Target", "Bytes", "Rows", "Status"})
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = r.Err.Error()
		}
		tw.AppendRow(table.Row{r.Source, r.Target, r.Bytes, r.Updated, status})
	}
	tw.AppendFooter(table.Row{"", "", "", "failed", transcode.Failed(results)})
	tw.Render()
}
