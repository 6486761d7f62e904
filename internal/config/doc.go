// Package config loads the stylesync configuration.
//
// Configuration is a typed Config value built from four sources, lowest
// precedence first:
//
//  1. Default()
//  2. a TOML file
//  3. STYLESYNC_* environment variables
//  4. Option values passed to Load
//
// The file and environment are merged as generic maps with
// loader.DeepMerge, so a file only needs the keys it changes:
//
//	[client]
//	base_url = "https://example.com/wp-json/stylesync/v1"
//	retry_delay = "500ms"
//
//	[collab]
//	exclude_paths = ["advanced.custom_*", "performance.*"]
//
// Environment variables name a section and key, e.g.
// STYLESYNC_CHANNEL_HEARTBEAT_INTERVAL=15s. STYLESYNC_TOKEN and
// STYLESYNC_BASE_URL are accepted as short forms of the client keys.
//
// Watch reloads the file whenever it changes on disk.
package config
