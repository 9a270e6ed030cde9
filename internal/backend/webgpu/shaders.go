package webgpu

// WGSL compute shaders for the float32 kernels. String constants rather
// than embedded files; each shader binds its operands in kernel argument
// order with a trailing uniform params block.

// workgroupSize is the number of threads per workgroup for 1-D dispatches.
const workgroupSize = 256

const binaryPrelude = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
`

const unaryPrelude = `
@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
`

const epilogue = `
    }
}
`

const (
	addShader     = binaryPrelude + `        result[idx] = a[idx] + b[idx];` + epilogue
	subShader     = binaryPrelude + `        result[idx] = a[idx] - b[idx];` + epilogue
	mulShader     = binaryPrelude + `        result[idx] = a[idx] * b[idx];` + epilogue
	divShader     = binaryPrelude + `        result[idx] = a[idx] / b[idx];` + epilogue
	maximumShader = binaryPrelude + `        result[idx] = max(a[idx], b[idx]);` + epilogue

	negShader  = unaryPrelude + `        result[idx] = -input[idx];` + epilogue
	expShader  = unaryPrelude + `        result[idx] = exp(input[idx]);` + epilogue
	logShader  = unaryPrelude + `        result[idx] = log(input[idx]);` + epilogue
	sinShader  = unaryPrelude + `        result[idx] = sin(input[idx]);` + epilogue
	cosShader  = unaryPrelude + `        result[idx] = cos(input[idx]);` + epilogue
	sqrtShader = unaryPrelude + `        result[idx] = sqrt(input[idx]);` + epilogue
	tanhShader = unaryPrelude + `        result[idx] = tanh(input[idx]);` + epilogue
	absShader  = unaryPrelude + `        result[idx] = abs(input[idx]);` + epilogue
)

// matmulShader computes C = A @ B with A [M, K], B [K, N], C [M, N].
const matmulShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    M: u32,  // rows of A and C
    K: u32,  // cols of A, rows of B
    N: u32,  // cols of B and C
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let row = global_id.y;
    let col = global_id.x;

    if (row >= params.M || col >= params.N) {
        return;
    }

    var sum: f32 = 0.0;
    for (var k: u32 = 0u; k < params.K; k = k + 1u) {
        sum = sum + a[row * params.K + k] * b[k * params.N + col];
    }
    result[row * params.N + col] = sum;
}
`
