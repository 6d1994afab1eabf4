//go:build (darwin || linux) && (amd64 || arm64)

package fakehost

import (
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/wippyai/clr-host/native"
)

// Native callbacks are a limited per-process resource, so one set is
// created and every entry dispatches to the active Host.
var (
	callbacksOnce sync.Once
	cb            struct {
		initCommandLine   uintptr
		initRuntimeConfig uintptr
		getProperty       uintptr
		setProperty       uintptr
		getProperties     uintptr
		runApp            uintptr
		getDelegate       uintptr
		closeHandle       uintptr
		setErrorWriter    uintptr

		loadAndGet        uintptr
		getFunctionPtr    uintptr
		loadAssembly      uintptr
		loadAssemblyBytes uintptr

		create     uintptr
		createNull uintptr
		configure  uintptr
		invoke     uintptr
		helperLoad uintptr

		clrInitialize     uintptr
		clrShutdown       uintptr
		clrShutdown2      uintptr
		clrCreateDelegate uintptr
		clrExecute        uintptr

		getHostfxrPath uintptr
	}
)

func initCallbacks() {
	callbacksOnce.Do(func() {
		cb.initCommandLine = purego.NewCallback(fxrInitCommandLine)
		cb.initRuntimeConfig = purego.NewCallback(fxrInitRuntimeConfig)
		cb.getProperty = purego.NewCallback(fxrGetProperty)
		cb.setProperty = purego.NewCallback(fxrSetProperty)
		cb.getProperties = purego.NewCallback(fxrGetProperties)
		cb.runApp = purego.NewCallback(fxrRunApp)
		cb.getDelegate = purego.NewCallback(fxrGetDelegate)
		cb.closeHandle = purego.NewCallback(fxrClose)
		cb.setErrorWriter = purego.NewCallback(fxrSetErrorWriter)

		cb.loadAndGet = purego.NewCallback(dlgLoadAndGet)
		cb.getFunctionPtr = purego.NewCallback(dlgGetFunctionPointer)
		cb.loadAssembly = purego.NewCallback(dlgLoadAssembly)
		cb.loadAssemblyBytes = purego.NewCallback(dlgLoadAssemblyBytes)

		cb.create = purego.NewCallback(mgdCreate)
		cb.createNull = purego.NewCallback(mgdCreateNull)
		cb.configure = purego.NewCallback(mgdConfigure)
		cb.invoke = purego.NewCallback(mgdInvoke)
		cb.helperLoad = purego.NewCallback(mgdHelperLoad)

		cb.clrInitialize = purego.NewCallback(clrInitialize)
		cb.clrShutdown = purego.NewCallback(clrShutdown)
		cb.clrShutdown2 = purego.NewCallback(clrShutdown2)
		cb.clrCreateDelegate = purego.NewCallback(clrCreateDelegate)
		cb.clrExecute = purego.NewCallback(clrExecuteAssembly)

		cb.getHostfxrPath = purego.NewCallback(nhGetHostfxrPath)
	})
}

// Hostfxr returns the export table of the fake hostfxr.
func (h *Host) Hostfxr() *Exports {
	return &Exports{
		path: filepath.Join(h.dir, "libhostfxr.so"),
		syms: map[string]uintptr{
			"hostfxr_initialize_for_dotnet_command_line": cb.initCommandLine,
			"hostfxr_initialize_for_runtime_config":      cb.initRuntimeConfig,
			"hostfxr_get_runtime_property_value":         cb.getProperty,
			"hostfxr_set_runtime_property_value":         cb.setProperty,
			"hostfxr_get_runtime_properties":             cb.getProperties,
			"hostfxr_run_app":                            cb.runApp,
			"hostfxr_get_runtime_delegate":               cb.getDelegate,
			"hostfxr_close":                              cb.closeHandle,
			"hostfxr_set_error_writer":                   cb.setErrorWriter,
		},
	}
}

// Coreclr returns the export table of the fake coreclr. Its
// coreclr_initialize always fails with StatusFail.
func (h *Host) Coreclr() *Exports {
	return &Exports{
		path: filepath.Join(h.dir, "libcoreclr.so"),
		syms: map[string]uintptr{
			"coreclr_initialize":       cb.clrInitialize,
			"coreclr_shutdown":         cb.clrShutdown,
			"coreclr_shutdown_2":       cb.clrShutdown2,
			"coreclr_create_delegate":  cb.clrCreateDelegate,
			"coreclr_execute_assembly": cb.clrExecute,
		},
	}
}

// Nethost returns the export table of the fake nethost.
func (h *Host) Nethost() *Exports {
	return &Exports{
		path: filepath.Join(h.dir, "libnethost.so"),
		syms: map[string]uintptr{
			"get_hostfxr_path": cb.getHostfxrPath,
		},
	}
}

// DefineComponent attaches Create, Configure and Invoke to typeName, plus
// a CreateNull that returns a null instance.
func (h *Host) DefineComponent(typeName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.methods[typeName+"::Create"] = cb.create
	h.methods[typeName+"::CreateNull"] = cb.createNull
	h.methods[typeName+"::Configure"] = cb.configure
	h.methods[typeName+"::Invoke"] = cb.invoke
}

// DefineHelper attaches a void(uint8_t*, int32_t) in-memory loader to
// typeName::method.
func (h *Host) DefineHelper(typeName, method string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.methods[typeName+"::"+method] = cb.helperLoad
}

func str(p uintptr) string {
	return native.GoString((*native.Char)(unsafe.Pointer(p)))
}

func putPtr(out, v uintptr) {
	if out != 0 {
		*(*uintptr)(unsafe.Pointer(out)) = v
	}
}

func status(code uint32) uintptr {
	return uintptr(code)
}

func (h *Host) readInitParams(params uintptr) {
	h.lastHostPath, h.lastRoot = "", ""
	if params == 0 {
		return
	}
	words := unsafe.Slice((*uintptr)(unsafe.Pointer(params)), 3)
	h.lastHostPath = str(words[1])
	h.lastRoot = str(words[2])
}

func (h *Host) initialize(handleOut uintptr) uintptr {
	putPtr(handleOut, 0)
	if h.InitFailure != 0 {
		return status(h.InitFailure)
	}
	if h.NullHandle {
		return status(h.InitStatus)
	}
	handle := h.nextHandle
	h.nextHandle += 0x10
	h.handles[handle] = true
	putPtr(handleOut, handle)
	return status(h.InitStatus)
}

func (h *Host) resolve(typeName, method string, out uintptr) uintptr {
	putPtr(out, 0)
	if !h.loaded[typeName] {
		return status(StatusTypeLoad)
	}
	addr, ok := h.methods[typeName+"::"+method]
	if !ok {
		return status(StatusMissingMethod)
	}
	putPtr(out, addr)
	return status(StatusSuccess)
}

func (h *Host) loadFile(path string) uint32 {
	data, err := os.ReadFile(path)
	if err != nil {
		return StatusFileNotFound
	}
	types, ok := parseAssembly(data)
	if !ok {
		return StatusBadImage
	}
	h.loadTypes(types)
	return StatusSuccess
}

func (h *Host) loadImage(data, size uintptr) uint32 {
	if data == 0 || int32(size) <= 0 {
		return StatusBadImage
	}
	image := unsafe.Slice((*byte)(unsafe.Pointer(data)), int(int32(size)))
	types, ok := parseAssembly(append([]byte(nil), image...))
	if !ok {
		return StatusBadImage
	}
	h.loadTypes(types)
	return StatusSuccess
}

// hostfxr exports

func fxrInitCommandLine(argc, argv, params, handleOut uintptr) uintptr {
	h := current()
	if h == nil {
		return status(StatusUnexpected)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("hostfxr_initialize_for_dotnet_command_line")

	n := int(int32(argc))
	args := make([]string, 0, n)
	if argv != 0 && n > 0 {
		for _, p := range unsafe.Slice((*uintptr)(unsafe.Pointer(argv)), n) {
			args = append(args, str(p))
		}
	}
	h.lastArgs = args
	h.readInitParams(params)
	return h.initialize(handleOut)
}

func fxrInitRuntimeConfig(path, params, handleOut uintptr) uintptr {
	h := current()
	if h == nil {
		return status(StatusUnexpected)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("hostfxr_initialize_for_runtime_config")

	h.lastArgs = []string{str(path)}
	h.readInitParams(params)
	return h.initialize(handleOut)
}

func fxrGetProperty(handle, name, valueOut uintptr) uintptr {
	h := current()
	if h == nil {
		return status(StatusUnexpected)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("hostfxr_get_runtime_property_value")

	if !h.handles[handle] {
		return status(StatusInvalidArg)
	}
	v, ok := h.props[str(name)]
	if !ok {
		return status(StatusPropertyMissing)
	}
	putPtr(valueOut, uintptr(unsafe.Pointer(h.cstr(v))))
	return status(StatusSuccess)
}

func fxrSetProperty(handle, name, value uintptr) uintptr {
	h := current()
	if h == nil {
		return status(StatusUnexpected)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("hostfxr_set_runtime_property_value")

	if !h.handles[handle] {
		return status(StatusInvalidArg)
	}
	if h.started {
		return status(StatusInvalidState)
	}
	if value == 0 {
		delete(h.props, str(name))
	} else {
		h.props[str(name)] = str(value)
	}
	return status(StatusSuccess)
}

func fxrGetProperties(handle, countPtr, keys, values uintptr) uintptr {
	h := current()
	if h == nil {
		return status(StatusUnexpected)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("hostfxr_get_runtime_properties")

	if !h.handles[handle] || countPtr == 0 {
		return status(StatusInvalidArg)
	}
	names := h.sortedProps()
	count := (*uintptr)(unsafe.Pointer(countPtr))
	if *count < uintptr(len(names)) || (len(names) > 0 && (keys == 0 || values == 0)) {
		*count = uintptr(len(names))
		return status(StatusBufferTooSmall)
	}
	if len(names) > 0 {
		k := unsafe.Slice((*uintptr)(unsafe.Pointer(keys)), len(names))
		v := unsafe.Slice((*uintptr)(unsafe.Pointer(values)), len(names))
		for i, name := range names {
			k[i] = uintptr(unsafe.Pointer(h.cstr(name)))
			v[i] = uintptr(unsafe.Pointer(h.cstr(h.props[name])))
		}
	}
	*count = uintptr(len(names))
	return status(StatusSuccess)
}

func fxrRunApp(handle uintptr) uintptr {
	h := current()
	if h == nil {
		return status(StatusUnexpected)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("hostfxr_run_app")

	if !h.handles[handle] {
		return status(StatusInvalidArg)
	}
	h.started = true
	return status(uint32(h.ExitCode))
}

func fxrGetDelegate(handle, kind, out uintptr) uintptr {
	h := current()
	if h == nil {
		return status(StatusUnexpected)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("hostfxr_get_runtime_delegate")

	putPtr(out, 0)
	k := int32(kind)
	if !h.handles[handle] || h.Unavailable[k] {
		return status(StatusInvalidArg)
	}
	var fn uintptr
	switch k {
	case 5:
		fn = cb.loadAndGet
	case 6:
		fn = cb.getFunctionPtr
	case 7:
		fn = cb.loadAssembly
	case 8:
		fn = cb.loadAssemblyBytes
	default:
		return status(StatusInvalidArg)
	}
	h.started = true
	putPtr(out, fn)
	return status(StatusSuccess)
}

func fxrClose(handle uintptr) uintptr {
	h := current()
	if h == nil {
		return status(StatusUnexpected)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("hostfxr_close")

	if !h.handles[handle] {
		return status(StatusInvalidArg)
	}
	delete(h.handles, handle)
	h.closes++
	return status(StatusSuccess)
}

func fxrSetErrorWriter(writer uintptr) uintptr {
	h := current()
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("hostfxr_set_error_writer")

	prev := h.errorWriter
	h.errorWriter = writer
	return prev
}

// runtime delegates

func dlgLoadAndGet(assemblyPath, typeName, method, delegateType, reserved, out uintptr) uintptr {
	h := current()
	if h == nil {
		return status(StatusUnexpected)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("load_assembly_and_get_function_pointer")

	h.lastDelegate = delegateType
	putPtr(out, 0)
	if rc := h.loadFile(str(assemblyPath)); rc != StatusSuccess {
		return status(rc)
	}
	return h.resolve(str(typeName), str(method), out)
}

func dlgGetFunctionPointer(typeName, method, delegateType, loadContext, reserved, out uintptr) uintptr {
	h := current()
	if h == nil {
		return status(StatusUnexpected)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("get_function_pointer")

	h.lastDelegate = delegateType
	return h.resolve(str(typeName), str(method), out)
}

func dlgLoadAssembly(assemblyPath, loadContext, reserved uintptr) uintptr {
	h := current()
	if h == nil {
		return status(StatusUnexpected)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("load_assembly")

	return status(h.loadFile(str(assemblyPath)))
}

func dlgLoadAssemblyBytes(data, size, symbols, symbolsSize, loadContext, reserved uintptr) uintptr {
	h := current()
	if h == nil {
		return status(StatusUnexpected)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("load_assembly_bytes")

	return status(h.loadImage(data, size))
}

// managed component methods

func mgdCreate() uintptr {
	h := current()
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("Create")

	handle := h.nextSession
	h.nextSession += 0x10
	h.sessions[handle] = &Session{}
	return handle
}

func mgdCreateNull() uintptr {
	if h := current(); h != nil {
		h.mu.Lock()
		h.record("CreateNull")
		h.mu.Unlock()
	}
	return 0
}

func mgdConfigure(instance, input uintptr) uintptr {
	h := current()
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("Configure")

	if s := h.sessions[instance]; s != nil {
		s.Inputs = append(s.Inputs, str(input))
	}
	return 0
}

func mgdInvoke(instance uintptr) uintptr {
	h := current()
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("Invoke")

	if s := h.sessions[instance]; s != nil {
		s.Invokes++
	}
	return 0
}

func mgdHelperLoad(data, size uintptr) uintptr {
	h := current()
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("LoadAssemblyFromMemory")

	h.loadImage(data, size)
	return 0
}

// coreclr exports

func clrInitialize() uintptr {
	if h := current(); h != nil {
		h.mu.Lock()
		h.record("coreclr_initialize")
		h.mu.Unlock()
	}
	return status(StatusFail)
}

func clrShutdown(handle, domainID uintptr) uintptr {
	h := current()
	if h == nil {
		return status(StatusUnexpected)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("coreclr_shutdown")
	return status(StatusSuccess)
}

func clrShutdown2(handle, domainID, exitOut uintptr) uintptr {
	h := current()
	if h == nil {
		return status(StatusUnexpected)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("coreclr_shutdown_2")

	if exitOut != 0 {
		*(*int32)(unsafe.Pointer(exitOut)) = h.ExitCode
	}
	return status(StatusSuccess)
}

func clrCreateDelegate(handle, domainID, assemblyName, typeName, method, out uintptr) uintptr {
	h := current()
	if h == nil {
		return status(StatusUnexpected)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("coreclr_create_delegate")

	putPtr(out, 0)
	addr, ok := h.methods[str(typeName)+"::"+str(method)]
	if !ok {
		return status(StatusMissingMethod)
	}
	putPtr(out, addr)
	return status(StatusSuccess)
}

func clrExecuteAssembly(handle, domainID, argc, argv, assemblyPath, exitOut uintptr) uintptr {
	h := current()
	if h == nil {
		return status(StatusUnexpected)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("coreclr_execute_assembly")

	path := str(assemblyPath)
	args := []string{path}
	n := int(int32(argc))
	if argv != 0 && n > 0 {
		for _, p := range unsafe.Slice((*uintptr)(unsafe.Pointer(argv)), n) {
			args = append(args, str(p))
		}
	}
	h.lastArgs = args

	if _, err := os.Stat(path); err != nil {
		return status(StatusFileNotFound)
	}
	if exitOut != 0 {
		*(*uint32)(unsafe.Pointer(exitOut)) = uint32(h.ExitCode)
	}
	return status(StatusSuccess)
}

// nethost exports

func nhGetHostfxrPath(buffer, sizePtr, params uintptr) uintptr {
	h := current()
	if h == nil {
		return status(StatusUnexpected)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("get_hostfxr_path")

	h.lastAsmPath, h.lastRoot = "", ""
	if params != 0 {
		words := unsafe.Slice((*uintptr)(unsafe.Pointer(params)), 3)
		h.lastAsmPath = str(words[1])
		h.lastRoot = str(words[2])
	}
	if sizePtr == 0 {
		return status(StatusInvalidArg)
	}
	if h.HostfxrPath == "" {
		return status(StatusLibMissing)
	}

	need := uintptr(len(h.HostfxrPath) + 1)
	size := (*uintptr)(unsafe.Pointer(sizePtr))
	if buffer == 0 || *size < need {
		*size = need
		return status(StatusBufferTooSmall)
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(buffer)), need)
	copy(dst, h.HostfxrPath)
	dst[need-1] = 0
	*size = need
	return status(StatusSuccess)
}
