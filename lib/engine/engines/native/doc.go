// Package native binds the engine.Engine interface to the device helper
// library (libfio_kv_helper.so) through purego, without cgo. The helper wraps
// the vendor key/value SDK of the flash device. Two C ABIs are supported, the
// one in use is detected when the library is loaded.
//
// Legacy ABI:
//
// The ABI of fio_kv_helper.h. Every fio_kv_store_t is bound to one numbered
// pool of the device, keys and values travel in small structs:
//
//	fio_kv_store_t *fio_kv_open(const char *device, int pool_id);
//	void    fio_kv_close(fio_kv_store_t *store);
//	void   *fio_kv_alloc(uint32_t length);
//	void    fio_kv_free_value(fio_kv_value_t *value);
//	int     fio_kv_get(fio_kv_store_t *store, fio_kv_key_t *key, fio_kv_value_t *value);
//	int     fio_kv_put(fio_kv_store_t *store, fio_kv_key_t *key, fio_kv_value_t *value);
//	bool    fio_kv_exists(fio_kv_store_t *store, fio_kv_key_t *key);
//	bool    fio_kv_delete(fio_kv_store_t *store, fio_kv_key_t *key);
//	int     fio_kv_get_last_error(void);
//
//	fio_kv_store_t { int fd; int64_t kv; int pool; }
//	fio_kv_key_t   { int length; kv_key_t *bytes; }
//	fio_kv_value_t { void *data; kv_key_info_t *info; }
//
// On a legacy helper, pool tags are the decimal pool numbers ("0" to "1023"),
// Open only accepts version 1 without expiry, and Pools lists the pools opened
// through the handle. Store info, pool deletion, key info, batches and
// iteration fail with ENOTSUP. fio_kv_close does not free the store struct,
// it is released with the free of the C library the helper links against.
//
// Extended ABI:
//
// Helpers exporting fio_kv_store_info implement the extended ABI, a shim over
// the same SDK that extends fio_kv_helper.h with handles, tagged pools, expiry,
// batches and cursors. Building such a shim is required for the full engine
// contract on a real device:
//
//	int64_t fio_kv_open(const char *device, uint32_t version, int32_t expiry_mode, uint32_t expiry_time);
//	int32_t fio_kv_close(int64_t store);
//	int32_t fio_kv_store_info(int64_t store, fio_kv_store_info_t *info);
//	int32_t fio_kv_get_or_create_pool(int64_t store, const char *tag);
//	int32_t fio_kv_pools(int64_t store, fio_kv_pool_desc_t *out, uint32_t max);
//	int32_t fio_kv_delete_pool(int64_t store, int32_t pool);
//	int32_t fio_kv_delete_all_pools(int64_t store);
//	int32_t fio_kv_delete_all(int64_t store);
//	void   *fio_kv_alloc(uint32_t length);
//	void    fio_kv_free(void *buf);
//	int32_t fio_kv_get_value_len(int64_t store, int32_t pool, const void *key, uint32_t key_len);
//	int32_t fio_kv_get_key_info(int64_t store, int32_t pool, const void *key, uint32_t key_len, fio_kv_key_info_t *info);
//	int32_t fio_kv_get(int64_t store, int32_t pool, const void *key, uint32_t key_len, void *value, uint32_t value_len);
//	int32_t fio_kv_put(int64_t store, int32_t pool, const void *key, uint32_t key_len, const void *value, uint32_t value_len, uint32_t expiry);
//	int32_t fio_kv_exists(int64_t store, int32_t pool, const void *key, uint32_t key_len, fio_kv_key_info_t *info);
//	int32_t fio_kv_delete(int64_t store, int32_t pool, const void *key, uint32_t key_len);
//	int32_t fio_kv_batch_put(int64_t store, int32_t pool, const fio_kv_iov_t *keys, const fio_kv_iov_t *values, const uint32_t *expiries, uint32_t count);
//	int32_t fio_kv_iterator(int64_t store, int32_t pool);
//	int32_t fio_kv_next(int64_t store, int32_t pool, int32_t cursor);
//	int32_t fio_kv_get_current(int64_t store, int32_t pool, int32_t cursor, void *key, uint32_t *key_len, void *value, uint32_t value_len);
//	int32_t fio_kv_end_iteration(int64_t store, int32_t pool, int32_t cursor);
//	int32_t fio_kv_get_last_error(void);
//
// Struct layouts (natural alignment):
//
//	fio_kv_store_info_t { uint32_t version, num_pools, max_pools, expiry_mode; uint64_t num_keys, free_space; }
//	fio_kv_key_info_t   { int32_t pool_id; uint32_t key_len, value_len, expiry, gen_count; }
//	fio_kv_pool_desc_t  { int32_t id; char tag[20]; }
//	fio_kv_iov_t        { void *data; uint32_t len; uint32_t reserved; }
//
// Error Reporting:
//
//   - Functions return a negative value on failure (NULL for fio_kv_alloc,
//     0/1 for the boolean result of fio_kv_exists). The reason is an errno kept
//     in thread local storage of the helper and read with
//     fio_kv_get_last_error. Since goroutines migrate between OS threads, every
//     call pins the goroutine with runtime.LockOSThread until the error code is
//     read, so a failure is never attributed to the wrong call. To callers the
//     error is returned directly as an engine.Errno.
//
//   - fio_kv_get_current returns the value length and writes the key length
//     through key_len. It reports ENODATA when the cursor is exhausted.
//
// Buffers:
//
//   - Alloc returns sector aligned memory from the helper. It is invisible to
//     the Go garbage collector and must be released with Free. Freeing memory
//     that was not returned by Alloc fails with EINVAL instead of corrupting
//     the C heap.
//
// The library is located through Options.LibraryPath, the FKV_LIBRARY_PATH
// environment variable or the dynamic loader search path, in that order.
package native
