// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func jsonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print output",
			Value: true,
		},
	}
}

// setupCommand handles setup operations for configuration and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write the default configuration file",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
		},
	}
}

// authCommand handles authentication with import sources
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage authentication",
		Commands: []*cli.Command{
			{
				Name:   "spotify",
				Usage:  "Authenticate with Spotify using OAuth2",
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthSpotify,
			},
		},
	}
}

// trackCommand resolves single tracks to playable files
func trackCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "track",
		Usage: "Single track operations",
		Commands: []*cli.Command{
			{
				Name:      "path",
				Usage:     "Print a playable path for a track, downloading it if needed",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "title",
						Usage: "Track title, used for logging",
					},
					&cli.BoolFlag{
						Name:  "preload",
						Usage: "Swallow failures and print nothing instead",
					},
					&cli.StringFlag{
						Name:  "quality",
						Usage: "Audio quality for this download (low, medium, high)",
					},
				},
				Action: r.TrackPath,
			},
			{
				Name:      "cached",
				Usage:     "Report whether a track is in the cache",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.TrackCached,
			},
		},
	}
}

// searchCommand runs a one-off search, optionally matched against a duration
func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search for a track",
		Arguments: []cli.Argument{&cli.StringArg{Name: "query"}},
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "duration",
				Usage: "Expected duration (M:SS); prints only the closest match",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of results",
			},
		}, jsonFlags()...),
		Action: r.Search,
	}
}

// downloadCommand handles bulk downloads
func downloadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "download",
		Usage: "Download tracks into the cache",
		Commands: []*cli.Command{
			{
				Name:  "batch",
				Usage: "Resolve and download a list of tracks from a JSON file",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "JSON file with [{name, artist, durationMs}]",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "playlist",
						Usage: "Save the matched tracks as this playlist",
					},
				}, jsonFlags()...),
				Action: r.DownloadBatch,
			},
		},
	}
}

// cacheCommand handles cache maintenance
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and maintain the download cache",
		Commands: []*cli.Command{
			{
				Name:   "stats",
				Usage:  "Show the number and size of cached files",
				Flags:  jsonFlags(),
				Action: r.CacheStats,
			},
			{
				Name:  "sweep",
				Usage: "Delete stale partial downloads",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "max-age",
						Usage: "Minimum age of files to delete (defaults to cache.temp_max_age_minutes)",
					},
				},
				Action: r.CacheSweep,
			},
			{
				Name:  "prune",
				Usage: "Evict the oldest files until the cache fits a size",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "max-size",
						Usage: "Size ceiling such as 2GB (defaults to cache.max_size)",
					},
				},
				Action: r.CachePrune,
			},
			{
				Name:  "compress",
				Usage: "Re-encode every cached file at a quality",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "quality",
						Usage:    "Target quality (low, medium, high)",
						Required: true,
					},
				},
				Action: r.CacheCompress,
			},
		},
	}
}

// importCommand handles background playlist imports
func importCommand(r *Runner) *cli.Command {
	idArg := []cli.Argument{&cli.StringArg{Name: "id"}}
	return &cli.Command{
		Name:    "import",
		Aliases: []string{"imp"},
		Usage:   "Manage playlist import tasks",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create an import task from a JSON file or a Spotify playlist",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "name",
						Usage: "Playlist name (defaults to the Spotify playlist name)",
					},
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "JSON file with [{name, artist, durationMs}]",
					},
					&cli.StringFlag{
						Name:  "spotify",
						Usage: "Spotify playlist ID to import",
					},
					&cli.BoolFlag{
						Name:  "download",
						Usage: "Download matched tracks into the playlist",
					},
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "Process the task in the foreground until it completes",
					},
				},
				Action: r.ImportCreate,
			},
			{
				Name:  "list",
				Usage: "List import tasks",
				Flags: append([]cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Include completed tasks",
					},
				}, jsonFlags()...),
				Action: r.ImportList,
			},
			{
				Name:      "show",
				Usage:     "Show the per-track results of a task",
				Arguments: idArg,
				Flags:     jsonFlags(),
				Action:    r.ImportShow,
			},
			{
				Name:      "pause",
				Usage:     "Pause a running task",
				Arguments: idArg,
				Action:    r.ImportPause,
			},
			{
				Name:      "resume",
				Usage:     "Resume a paused task in the foreground",
				Arguments: idArg,
				Action:    r.ImportResume,
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a task",
				Arguments: idArg,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "save-partial",
						Usage: "Save the tracks found so far as a partial playlist",
					},
				},
				Action: r.ImportCancel,
			},
			{
				Name:      "remove",
				Usage:     "Forget a completed task",
				Arguments: idArg,
				Action:    r.ImportRemove,
			},
			{
				Name:  "run",
				Usage: "Resume interrupted tasks and process the queue until idle",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Also resume tasks that were paused on purpose",
					},
				},
				Action: r.ImportRun,
			},
			{
				Name:      "export",
				Usage:     "Write a task report",
				Arguments: idArg,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Usage: "Report format (csv, md, txt)",
						Value: "txt",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
					},
				},
				Action: r.ImportExport,
			},
		},
	}
}

// serveCommand runs the local HTTP API
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Serve the HTTP API and process imports in the background",
		Action: r.Serve,
	}
}
