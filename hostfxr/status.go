package hostfxr

import "fmt"

// StatusCode is a raw status returned by the hosting layer or the runtime.
// It is diagnostic data: callers should only rely on Succeeded.
type StatusCode uint32

// hostfxr status codes (see the .NET host's error_codes.h).
const (
	Success                           StatusCode = 0x00000000
	SuccessHostAlreadyInitialized     StatusCode = 0x00000001
	SuccessDifferentRuntimeProperties StatusCode = 0x00000002

	InvalidArgFailure          StatusCode = 0x80008081
	CoreHostLibLoadFailure     StatusCode = 0x80008082
	CoreHostLibMissingFailure  StatusCode = 0x80008083
	CoreHostEntryPointFailure  StatusCode = 0x80008084
	CoreHostCurHostFindFailure StatusCode = 0x80008085
	CoreClrResolveFailure      StatusCode = 0x80008087
	CoreClrBindFailure         StatusCode = 0x80008088
	CoreClrInitFailure         StatusCode = 0x80008089
	CoreClrExeFailure          StatusCode = 0x8000808a
	ResolverInitFailure        StatusCode = 0x8000808b
	ResolverResolveFailure     StatusCode = 0x8000808c
	LibHostCurExeFindFailure   StatusCode = 0x8000808d
	LibHostInitFailure         StatusCode = 0x8000808e
	LibHostSdkFindFailure      StatusCode = 0x80008091
	LibHostInvalidArgs         StatusCode = 0x80008092
	InvalidConfigFile          StatusCode = 0x80008093
	AppArgNotRunnable          StatusCode = 0x80008094
	AppHostExeNotBoundFailure  StatusCode = 0x80008095
	FrameworkMissingFailure    StatusCode = 0x80008096
	HostApiFailed              StatusCode = 0x80008097
	HostApiBufferTooSmall      StatusCode = 0x80008098
	LibHostUnknownCommand      StatusCode = 0x80008099
	LibHostAppRootFindFailure  StatusCode = 0x8000809a
	SdkResolverResolveFailure  StatusCode = 0x8000809b
	FrameworkCompatFailure     StatusCode = 0x8000809c
	FrameworkCompatRetry       StatusCode = 0x8000809d
	BundleExtractionFailure    StatusCode = 0x8000809f
	BundleExtractionIOError    StatusCode = 0x800080a0
	LibHostDuplicateProperty   StatusCode = 0x800080a1
	HostApiUnsupportedVersion  StatusCode = 0x800080a2
	HostInvalidState           StatusCode = 0x800080a3
	HostPropertyNotFound       StatusCode = 0x800080a4
	CoreHostIncompatibleConfig StatusCode = 0x800080a5
	HostApiUnsupportedScenario StatusCode = 0x800080a6
	HostFeatureDisabled        StatusCode = 0x800080a7
)

// Managed exception HRESULTs commonly surfaced by the runtime delegates.
const (
	FileNotFound       StatusCode = 0x80070002
	InvalidArgument    StatusCode = 0x80070057
	BadImageFormat     StatusCode = 0x8007000b
	InvalidOperation   StatusCode = 0x80131509
	MissingMethod      StatusCode = 0x80131513
	TypeLoad           StatusCode = 0x80131522
	FileLoad           StatusCode = 0x80131621
	ArgumentNull       StatusCode = 0x80004003
	NotImplemented     StatusCode = 0x80004001
	UnexpectedFailure  StatusCode = 0x8000ffff
	EntryPointNotFound StatusCode = 0x80131523
)

var statusNames = map[StatusCode]string{
	Success:                           "Success",
	SuccessHostAlreadyInitialized:     "Success_HostAlreadyInitialized",
	SuccessDifferentRuntimeProperties: "Success_DifferentRuntimeProperties",
	InvalidArgFailure:                 "InvalidArgFailure",
	CoreHostLibLoadFailure:            "CoreHostLibLoadFailure",
	CoreHostLibMissingFailure:         "CoreHostLibMissingFailure",
	CoreHostEntryPointFailure:         "CoreHostEntryPointFailure",
	CoreHostCurHostFindFailure:        "CoreHostCurHostFindFailure",
	CoreClrResolveFailure:             "CoreClrResolveFailure",
	CoreClrBindFailure:                "CoreClrBindFailure",
	CoreClrInitFailure:                "CoreClrInitFailure",
	CoreClrExeFailure:                 "CoreClrExeFailure",
	ResolverInitFailure:               "ResolverInitFailure",
	ResolverResolveFailure:            "ResolverResolveFailure",
	LibHostCurExeFindFailure:          "LibHostCurExeFindFailure",
	LibHostInitFailure:                "LibHostInitFailure",
	LibHostSdkFindFailure:             "LibHostSdkFindFailure",
	LibHostInvalidArgs:                "LibHostInvalidArgs",
	InvalidConfigFile:                 "InvalidConfigFile",
	AppArgNotRunnable:                 "AppArgNotRunnable",
	AppHostExeNotBoundFailure:         "AppHostExeNotBoundFailure",
	FrameworkMissingFailure:           "FrameworkMissingFailure",
	HostApiFailed:                     "HostApiFailed",
	HostApiBufferTooSmall:             "HostApiBufferTooSmall",
	LibHostUnknownCommand:             "LibHostUnknownCommand",
	LibHostAppRootFindFailure:         "LibHostAppRootFindFailure",
	SdkResolverResolveFailure:         "SdkResolverResolveFailure",
	FrameworkCompatFailure:            "FrameworkCompatFailure",
	FrameworkCompatRetry:              "FrameworkCompatRetry",
	BundleExtractionFailure:           "BundleExtractionFailure",
	BundleExtractionIOError:           "BundleExtractionIOError",
	LibHostDuplicateProperty:          "LibHostDuplicateProperty",
	HostApiUnsupportedVersion:         "HostApiUnsupportedVersion",
	HostInvalidState:                  "HostInvalidState",
	HostPropertyNotFound:              "HostPropertyNotFound",
	CoreHostIncompatibleConfig:        "CoreHostIncompatibleConfig",
	HostApiUnsupportedScenario:        "HostApiUnsupportedScenario",
	HostFeatureDisabled:               "HostFeatureDisabled",
	FileNotFound:                      "COR_E_FILENOTFOUND",
	InvalidArgument:                   "E_INVALIDARG",
	BadImageFormat:                    "COR_E_BADIMAGEFORMAT",
	InvalidOperation:                  "COR_E_INVALIDOPERATION",
	MissingMethod:                     "COR_E_MISSINGMETHOD",
	TypeLoad:                          "COR_E_TYPELOAD",
	FileLoad:                          "COR_E_FILELOAD",
	ArgumentNull:                      "E_POINTER",
	NotImplemented:                    "E_NOTIMPL",
	UnexpectedFailure:                 "E_UNEXPECTED",
	EntryPointNotFound:                "COR_E_ENTRYPOINTNOTFOUND",
}

// Succeeded mirrors STATUS_CODE_SUCCEEDED: any non-negative value.
func (s StatusCode) Succeeded() bool {
	return int32(s) >= 0
}

// IsHostFailure reports whether s is one of the hosting layer's own
// failure codes, as opposed to an application exit code or a managed HRESULT.
func (s StatusCode) IsHostFailure() bool {
	return s >= InvalidArgFailure && s <= HostFeatureDisabled
}

func (s StatusCode) String() string {
	if name, ok := statusNames[s]; ok {
		return fmt.Sprintf("%s (0x%08X)", name, uint32(s))
	}
	return fmt.Sprintf("0x%08X", uint32(s))
}

func statusOf(rc int32) StatusCode {
	return StatusCode(uint32(rc))
}
