// The admin port speaks the Redis protocol so that redis-cli can inspect and invalidate a running cache, e.g.
//   redis-cli -p 6390 INVALIDATEPREFIX bc_
// Besides diagnostics and invalidation it can warm the cache from image files on the local disk; cached pixels never
// leave the process.

package port

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/redcon"

	"github.com/nobletooth/pixcache/pkg/adjust"
	"github.com/nobletooth/pixcache/pkg/cache"
	"github.com/nobletooth/pixcache/pkg/fingerprint"
	"github.com/nobletooth/pixcache/pkg/utils"
)

const RedisOk = "OK"

var adminAddress = flag.String("admin_address", "127.0.0.1:6390",
	"The ip:port to listen on for the Redis protocol admin port; empty disables it.")

// AdminCache is the part of the cache reachable through the admin port.
type AdminCache interface {
	Config() cache.Config
	Configure(config cache.Config) error
	Contains(key string) (bool, error)
	Invalidate(key string) (bool, error)
	InvalidateByPrefix(prefix string) (int, error)
	InvalidateByPattern(pattern string) (int, error)
	InvalidateByGlob(pattern string) (int, error)
	Clear() (int, error)
	PruneByAge(maxAge time.Duration) (int, error)
	PurgeExpired() (int, error)
	EntriesByPrefix(prefix string, limit, offset int) ([]cache.EntryInfo, error)
	AnalyzeUsage() (map[string]int, error)
	Len() int
	MemoryUsage() int64
	ExportStats() (string, error)
	ResetStats() error
	GetOrCompute(img image.Image, operation string, params ...int) (image.Image, error)
	PreloadCommonOperations(img image.Image) (int, error)
	MirrorInvalidate(path string)
	MirrorPreload(path string)
}

var _ AdminCache = (*cache.Cache)(nil)

// redisCommand represents a Redis command with its arguments.
type redisCommand struct {
	command string
	args    []string
}

// redisOutput conforms to a real Redis server output on non pub / sub commands.
type redisOutput struct {
	closeConnection bool     // Closes the connection if true.
	writeNil        bool     // Writes a nil value if true.
	err             *string  // Error to return if set.
	writeInt        *int     // Writes an integer value if set.
	writeBulk       *string  // Writes a bulk string if set.
	isArray         bool     // Writes writeArray as an array of bulk strings if true.
	writeArray      []string // Array elements, possibly empty.
	writeString     string   // Writes a simple string otherwise.
}

func closeRedisConnection(msg string) redisOutput {
	return redisOutput{writeString: msg, closeConnection: true}
}

func writeRedisNil() redisOutput {
	return redisOutput{writeNil: true}
}

func writeRedisInt(i int) redisOutput {
	return redisOutput{writeInt: &i}
}

func writeRedisString(s string) redisOutput {
	return redisOutput{writeString: s}
}

func writeRedisBulk(s string) redisOutput {
	return redisOutput{writeBulk: &s}
}

func writeRedisArray(values []string) redisOutput {
	return redisOutput{writeArray: values, isArray: true}
}

func writeRedisError(err error) redisOutput {
	msg := "ERR " + err.Error()
	return redisOutput{err: &msg}
}

func wrongArgs(command string) redisOutput {
	return writeRedisError(fmt.Errorf("wrong number of arguments for '%s' command", strings.ToLower(command)))
}

// writeRedisOutput encodes `output` on `conn`.
func writeRedisOutput(conn redcon.Conn, output redisOutput) {
	switch {
	case output.err != nil:
		conn.WriteError(*output.err)
	case output.writeNil:
		conn.WriteNull()
	case output.writeInt != nil:
		conn.WriteInt(*output.writeInt)
	case output.writeBulk != nil:
		conn.WriteBulkString(*output.writeBulk)
	case output.isArray:
		conn.WriteArray(len(output.writeArray))
		for _, value := range output.writeArray {
			conn.WriteBulkString(value)
		}
	default:
		conn.WriteString(output.writeString)
	}
}

type redisHandler struct {
	cache AdminCache
}

// newRedisHandler creates a new redisHandler.
func newRedisHandler(c AdminCache) (*redisHandler, error) {
	if c == nil {
		return nil, errors.New("expected a non-nil cache")
	}
	return &redisHandler{cache: c}, nil
}

// countOrError turns the result of a bulk cache operation into a Redis output.
func countOrError(count int, err error) redisOutput {
	if err != nil {
		return writeRedisError(err)
	}
	return writeRedisInt(count)
}

func (rh *redisHandler) handle(cmd redisCommand) redisOutput {
	command := strings.ToUpper(cmd.command)
	switch command {
	case "PING":
		return writeRedisString("PONG")
	case "QUIT":
		return closeRedisConnection(RedisOk)
	case "LEN":
		return writeRedisInt(rh.cache.Len())
	case "MEMORY":
		return writeRedisInt(int(rh.cache.MemoryUsage()))
	case "STATS":
		stats, err := rh.cache.ExportStats()
		if err != nil {
			return writeRedisError(err)
		}
		return writeRedisBulk(stats)
	case "RESETSTATS":
		if err := rh.cache.ResetStats(); err != nil {
			return writeRedisError(err)
		}
		return writeRedisString(RedisOk)
	case "EXISTS":
		if len(cmd.args) != 1 {
			return wrongArgs(command)
		}
		found, err := rh.cache.Contains(cmd.args[0])
		if err != nil {
			return writeRedisError(err)
		}
		if found {
			return writeRedisInt(1)
		}
		return writeRedisInt(0)
	case "INVALIDATE":
		if len(cmd.args) < 1 {
			return wrongArgs(command)
		}
		invalidated := 0
		for _, key := range cmd.args {
			removed, err := rh.cache.Invalidate(key)
			if err != nil {
				return writeRedisError(err)
			}
			if removed {
				invalidated++
			}
		}
		return writeRedisInt(invalidated)
	case "INVALIDATEPREFIX":
		if len(cmd.args) != 1 {
			return wrongArgs(command)
		}
		return countOrError(rh.cache.InvalidateByPrefix(cmd.args[0]))
	case "INVALIDATEPATTERN":
		if len(cmd.args) != 1 {
			return wrongArgs(command)
		}
		return countOrError(rh.cache.InvalidateByPattern(cmd.args[0]))
	case "INVALIDATEGLOB":
		if len(cmd.args) != 1 {
			return wrongArgs(command)
		}
		return countOrError(rh.cache.InvalidateByGlob(cmd.args[0]))
	case "CLEAR":
		return countOrError(rh.cache.Clear())
	case "PURGE":
		return countOrError(rh.cache.PurgeExpired())
	case "PRUNE":
		if len(cmd.args) != 1 {
			return wrongArgs(command)
		}
		seconds, err := strconv.Atoi(cmd.args[0])
		if err != nil || seconds < 0 {
			return writeRedisError(fmt.Errorf("invalid max age %q, expected non-negative seconds", cmd.args[0]))
		}
		return countOrError(rh.cache.PruneByAge(time.Duration(seconds) * time.Second))
	case "KEYS":
		return rh.handleKeys(cmd.args)
	case "USAGE":
		usage, err := rh.cache.AnalyzeUsage()
		if err != nil {
			return writeRedisError(err)
		}
		flattened := make([]string, 0, 2*len(usage))
		for _, prefix := range slices.Sorted(maps.Keys(usage)) {
			flattened = append(flattened, prefix, strconv.Itoa(usage[prefix]))
		}
		return writeRedisArray(flattened)
	case "CONFIG":
		return rh.handleConfig(cmd.args)
	case "ADJUST":
		return rh.handleAdjust(cmd.args)
	case "PRELOAD":
		if len(cmd.args) != 1 {
			return wrongArgs(command)
		}
		img, err := adjust.Load(cmd.args[0])
		if err != nil {
			return writeRedisError(err)
		}
		rh.cache.MirrorPreload(cmd.args[0])
		return countOrError(rh.cache.PreloadCommonOperations(img))
	case "MIRRORINVALIDATE":
		if len(cmd.args) != 1 {
			return wrongArgs(command)
		}
		rh.cache.MirrorInvalidate(cmd.args[0])
		return writeRedisString(RedisOk)
	default:
		return writeRedisError(fmt.Errorf("unknown command '%s'", cmd.command))
	}
}

// handleKeys serves `KEYS prefix [limit [offset]]`.
func (rh *redisHandler) handleKeys(args []string) redisOutput {
	if len(args) < 1 || len(args) > 3 {
		return wrongArgs("KEYS")
	}
	limit, offset := 0, 0
	for i, target := range []*int{&limit, &offset} {
		if len(args) <= i+1 {
			break
		}
		value, err := strconv.Atoi(args[i+1])
		if err != nil || value < 0 {
			return writeRedisError(fmt.Errorf("invalid pagination value %q", args[i+1]))
		}
		*target = value
	}
	entries, err := rh.cache.EntriesByPrefix(args[0], limit, offset)
	if err != nil {
		return writeRedisError(err)
	}
	keys := make([]string, len(entries))
	for i, entry := range entries {
		keys[i] = entry.Key
	}
	return writeRedisArray(keys)
}

// handleAdjust serves `ADJUST path operation [params...]`: it caches the adjusted image file and returns its key.
func (rh *redisHandler) handleAdjust(args []string) redisOutput {
	if len(args) < 2 {
		return wrongArgs("ADJUST")
	}
	params := make([]int, len(args)-2)
	for i, arg := range args[2:] {
		param, err := strconv.Atoi(arg)
		if err != nil {
			return writeRedisError(fmt.Errorf("invalid operation param %q", arg))
		}
		params[i] = param
	}
	img, err := adjust.Load(args[0])
	if err != nil {
		return writeRedisError(err)
	}
	if _, err := rh.cache.GetOrCompute(img, args[1], params...); err != nil {
		return writeRedisError(err)
	}
	return writeRedisBulk(fingerprint.Key(img, args[1], params...))
}

// handleConfig serves `CONFIG GET [name]` and `CONFIG SET name value`.
func (rh *redisHandler) handleConfig(args []string) redisOutput {
	if len(args) < 1 {
		return wrongArgs("CONFIG")
	}
	config := rh.cache.Config()
	switch strings.ToUpper(args[0]) {
	case "GET":
		if len(args) > 2 {
			return wrongArgs("CONFIG GET")
		}
		pairs := []string{
			"max_items", strconv.Itoa(config.MaxItems),
			"max_memory_bytes", strconv.FormatInt(config.MaxMemoryBytes, 10),
			"default_ttl", config.DefaultTTL.String(),
			"stats_interval", config.StatsInterval.String(),
			"stats_buckets", strconv.Itoa(config.StatsBuckets),
			"hit_weight", strconv.FormatFloat(config.HitWeight, 'g', -1, 64),
		}
		if len(args) == 1 {
			return writeRedisArray(pairs)
		}
		for i := 0; i < len(pairs); i += 2 {
			if pairs[i] == strings.ToLower(args[1]) {
				return writeRedisBulk(pairs[i+1])
			}
		}
		return writeRedisNil()
	case "SET":
		if len(args) != 3 {
			return wrongArgs("CONFIG SET")
		}
		if err := setConfigField(&config, strings.ToLower(args[1]), args[2]); err != nil {
			return writeRedisError(err)
		}
		if err := rh.cache.Configure(config); err != nil {
			return writeRedisError(err)
		}
		return writeRedisString(RedisOk)
	default:
		return writeRedisError(fmt.Errorf("unknown CONFIG subcommand '%s'", args[0]))
	}
}

func setConfigField(config *cache.Config, name, value string) error {
	var err error
	switch name {
	case "max_items":
		config.MaxItems, err = strconv.Atoi(value)
	case "max_memory_bytes":
		config.MaxMemoryBytes, err = strconv.ParseInt(value, 10, 64)
	case "default_ttl":
		config.DefaultTTL, err = time.ParseDuration(value)
	case "stats_interval":
		config.StatsInterval, err = time.ParseDuration(value)
	case "stats_buckets":
		config.StatsBuckets, err = strconv.Atoi(value)
	case "hit_weight":
		config.HitWeight, err = strconv.ParseFloat(value, 64)
	default:
		return fmt.Errorf("unknown config parameter '%s'", name)
	}
	if err != nil {
		return fmt.Errorf("invalid value %q for '%s': %w", value, name, err)
	}
	return nil
}

// RunAdminServer serves the admin port for `c` until `ctx` is done. It returns immediately when --admin_address is
// empty.
func RunAdminServer(ctx context.Context, c AdminCache) error {
	if *adminAddress == "" {
		slog.Info("Admin port disabled.")
		return nil
	}

	redisHandler, err := newRedisHandler(c)
	if err != nil {
		return fmt.Errorf("failed to create a new redis handler: %w", err)
	}
	logger := utils.ModuleLogger("port")

	redisServer := redcon.NewServerNetwork("tcp" /*net*/, *adminAddress,
		/*handler*/ func(conn redcon.Conn, cmd redcon.Command) {
			// Convert redcon.Command to redisCommand.
			command := redisCommand{command: string(cmd.Args[0]), args: make([]string, len(cmd.Args)-1)}
			for i := 1; i < len(cmd.Args); i++ {
				command.args[i-1] = string(cmd.Args[i])
			}
			output := redisHandler.handle(command)
			writeRedisOutput(conn, output)
			if output.closeConnection {
				if err := conn.Close(); err != nil {
					logger.Error("Failed to close connection.", "error", err)
				}
			}
		},
		/*accept*/ func(conn redcon.Conn) bool {
			logger.Debug("Admin connection accepted.", "remote", conn.RemoteAddr())
			return true
		},
		/*closed*/ func(conn redcon.Conn, err error) {
			if err != nil {
				logger.Debug("Admin connection closed.", "remote", conn.RemoteAddr(), "error", err)
			}
		})

	serverErrSignal := make(chan error, 1)
	go func() {
		if err := redisServer.ListenAndServe(); err != nil {
			serverErrSignal <- err
		}
		close(serverErrSignal)
	}()
	logger.Info("Admin port listening.", "address", *adminAddress)
	return awaitAdminServer(ctx, serverErrSignal, redisServer.Close)
}

// awaitAdminServer blocks until `ctx` is done, closing the server, or until the server stops on its own.
func awaitAdminServer(ctx context.Context, serverErrSignal <-chan error, closeServer func() error) error {
	select {
	case <-ctx.Done():
		if err := closeServer(); err != nil {
			return fmt.Errorf("failed to close the admin port: %w", err)
		}
	case err, ok := <-serverErrSignal:
		if ok && err != nil {
			return fmt.Errorf("admin server stopped unexpectedly: %w", err)
		}
		slog.Warn("Admin server stopped without an error.")
	}

	return nil // Exited with no errors.
}
