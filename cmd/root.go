// file: cmd/root.go
// version: 1.5.0
// guid: 8a0c2e4d-5f7b-4d9f-a1b3-6e8a0c2e4a6d

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JeremiahM37/librarr/internal/config"
	"github.com/JeremiahM37/librarr/internal/jobs"
	"github.com/JeremiahM37/librarr/internal/server"
	"github.com/JeremiahM37/librarr/internal/source"
	"github.com/JeremiahM37/librarr/internal/watcher"
)

var cfgFile string
var databasePath string
var listenAddr string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "librarr",
	Short: "Search and download manager for ebooks and audiobooks",
	Long: `Librarr searches public archives, indexers, and web novel sites for
books, downloads them through the best available route, and organizes the
results into your library.`,
}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long:  `Start the web server providing search, download management, and the activity feed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()
		a.wireRealtime()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Completed-torrent polling and the watch-dir importer run for the
		// lifetime of the server.
		if a.torrents != nil {
			go a.importer.Run(ctx)
		}
		if dir := config.AppConfig.TorrentWatchDir; dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("cannot create torrent watch dir: %w", err)
			}
			w := watcher.New(a.importer.ScanDir, 0)
			if err := w.Start(dir); err != nil {
				return fmt.Errorf("cannot watch %s: %w", dir, err)
			}
			defer w.Stop()
			a.importer.ScanDir(dir)
		}

		srv := server.NewServer(server.Deps{
			Sources:    a.sources,
			Health:     a.health,
			Aggregator: a.agg,
			Jobs:       a.jobs,
			Orch:       a.orch,
			Library:    a.lib,
			Hub:        a.hub,
			Torrents:   a.torrents,
		})

		addr := config.AppConfig.ListenAddr
		if flagAddr := cmd.Flag("listen").Value.String(); flagAddr != "" {
			addr = flagAddr
		}
		return srv.Start(addr)
	},
}

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search all configured sources",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		query := joinArgs(args)
		category := source.Category(cmd.Flag("category").Value.String())

		results := a.agg.Search(context.Background(), query, category)
		if len(results) == 0 {
			fmt.Println("No results.")
			return nil
		}
		for i, r := range results {
			line := fmt.Sprintf("%2d. [%s] %s", i+1, r.Source, r.Title)
			if r.Author != "" {
				line += " — " + r.Author
			}
			if r.SizeHuman != "" {
				line += fmt.Sprintf(" (%s)", r.SizeHuman)
			}
			if r.Kind == source.KindTorrent {
				line += fmt.Sprintf(" [%d seeders]", r.Seeders)
			}
			fmt.Println(line)
		}
		return nil
	},
}

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download [query]",
	Short: "Search and download the best result",
	Long:  `Search all sources for the query and download the top-ranked result, waiting for the job to finish.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		query := joinArgs(args)
		category := source.Category(cmd.Flag("category").Value.String())
		pick, _ := cmd.Flags().GetInt("pick")

		fmt.Printf("Searching for %q...\n", query)
		results := a.agg.Search(context.Background(), query, category)
		if len(results) == 0 {
			return fmt.Errorf("no results for %q", query)
		}
		if pick < 1 || pick > len(results) {
			return fmt.Errorf("pick %d out of range (1-%d)", pick, len(results))
		}
		result := results[pick-1]
		fmt.Printf("Downloading %q via %s\n", result.Title, result.Source)

		job, err := a.orch.Dispatch(result)
		if err != nil {
			return err
		}
		final, err := waitForJob(a.jobs, job.ID)
		if err != nil {
			return err
		}
		if final.Status == jobs.StatusFailed {
			return fmt.Errorf("download failed: %s", final.Error)
		}
		if final.FilePath != "" {
			fmt.Printf("Done: %s\n", final.FilePath)
		} else {
			fmt.Printf("Done: %s\n", final.Detail)
		}
		return nil
	},
}

// jobsCmd represents the jobs command
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List download jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		limit, _ := cmd.Flags().GetInt("limit")
		list := a.jobs.List(limit)
		if len(list) == 0 {
			fmt.Println("No jobs.")
			return nil
		}
		for _, j := range list {
			line := fmt.Sprintf("%s  %-9s  %q via %s", j.ID, j.Status, j.Title, j.Source)
			if j.Error != "" {
				line += "  (" + j.Error + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("librarr", server.Version)
	},
}

// waitForJob polls the registry until the job is terminal, showing progress.
func waitForJob(reg *jobs.Registry, id string) (jobs.Job, error) {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("queued"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWriter(os.Stderr),
	)
	defer bar.Finish()

	for {
		job, ok := reg.Get(id)
		if !ok {
			return jobs.Job{}, fmt.Errorf("job %s disappeared", id)
		}
		detail := job.Detail
		if detail == "" {
			detail = string(job.Status)
		}
		bar.Describe(detail)
		bar.Add(1)
		if job.Status.Terminal() {
			fmt.Fprintln(os.Stderr)
			return job, nil
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.librarr.yaml)")
	rootCmd.PersistentFlags().StringVar(&databasePath, "db", "", "path to the SQLite database")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", "", "address for the web server (serve only)")

	viper.BindPFlag("database_path", rootCmd.PersistentFlags().Lookup("db"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(versionCmd)

	searchCmd.Flags().String("category", "ebook", "search category: ebook or audiobook")
	downloadCmd.Flags().String("category", "ebook", "search category: ebook or audiobook")
	downloadCmd.Flags().Int("pick", 1, "which search result to download (1 = best)")
	jobsCmd.Flags().Int("limit", 20, "maximum jobs to list")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".librarr")
	}

	viper.SetEnvPrefix("librarr")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}

	config.InitConfig()

	// Settings saved from the UI fill gaps the environment left open.
	if err := config.LoadConfigFromFile(); err != nil {
		log.Printf("[WARN] Could not load saved settings: %v", err)
	}

	if databasePath != "" {
		config.AppConfig.DatabasePath = databasePath
		dbDir := filepath.Dir(databasePath)
		if dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o755); err != nil {
				fmt.Printf("Error creating database directory: %v\n", err)
			}
		}
	}
}
