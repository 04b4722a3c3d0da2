// Package dylib loads a native client library at runtime and exposes it as
// a native.Service.
//
// The library is opened with purego, so no cgo toolchain is needed. It must
// export the tc_* C interface:
//
//	tc_create_context(config tc_string_data_t) tc_string_handle_t*
//	tc_destroy_context(context uint32_t)
//	tc_request(context uint32_t, function tc_string_data_t, params tc_string_data_t,
//	           request_id uint32_t, handler tc_response_handler_t)
//	tc_read_string(handle tc_string_handle_t*) tc_string_data_t
//	tc_destroy_string(handle tc_string_handle_t*)
//
// tc_string_data_t is {const char* content; uint32_t len}. Binding is limited
// to amd64 and arm64, where that struct travels in two integer registers.
//
// Every request shares one C response handler. The request ID handed to the
// library is a process-wide route key, so several Services over the same
// library never see each other's completions.
package dylib
