package ops

import (
	"fmt"

	"github.com/tuneinsight/kpibench/encvalue"
	"github.com/tuneinsight/kpibench/keymat"
	"github.com/tuneinsight/kpibench/value"
)

// ExecutePlain evaluates op over operands (already arity-checked by
// algorithm.Parse) and constant, using the cleartext kernels in
// package value.
func ExecutePlain(op string, operands []value.Vector, constant *float64) (value.Vector, error) {
	switch op {
	case "Addition":
		return value.AddN(operands...)
	case "Subtraction":
		return value.SubN(operands...)
	case "Multiplication":
		return value.MulN(operands...)
	case "Minima":
		return value.MinVec(operands...), nil
	case "Maxima":
		return value.MaxVec(operands...), nil
	case "Division":
		return value.Div(operands[0], operands[1])
	case "Power":
		return value.Pow(operands[0], operands[1])
	case "AdditionConst":
		return operands[0].AddConst(*constant), nil
	case "SubtractionVarConst":
		return operands[0].SubVarConst(*constant), nil
	case "SubtractionConstVar":
		return operands[0].SubConstVar(*constant), nil
	case "MultiplicationConst":
		return operands[0].MulConst(*constant), nil
	case "DivisionVarConst":
		return operands[0].DivVarConst(*constant), nil
	case "DivisionConstVar":
		return operands[0].DivConstVar(*constant), nil
	case "PowerConst":
		return operands[0].PowConst(*constant), nil
	case "PowerBaseConst":
		return operands[0].PowBaseConst(*constant), nil
	case "Squareroot":
		return operands[0].Sqrt(), nil
	case "Absolute":
		return operands[0].Abs(), nil
	case "AdditionOverN":
		return operands[0].SumOverN(), nil
	case "MinimaOverN":
		return operands[0].MinOverN(), nil
	case "MaximaOverN":
		return operands[0].MaxOverN(), nil
	case "DefConst":
		return value.Scalar(*constant), nil
	default:
		return nil, &UnknownOpError{Op: op}
	}
}

// ExecuteEncrypted evaluates op over operands and constant using the
// encrypted kernels in package encvalue, constructing the constant
// operand under bundle where the op requires one. Every op the op
// table marks "Enc local: ✗" returns encvalue.ErrOffload here,
// independent of the proxy's own per-call eligibility check.
func ExecuteEncrypted(op string, operands []*encvalue.Vector, constant *float64, bundle *keymat.Bundle) (*encvalue.Vector, error) {
	switch op {
	case "Addition":
		return encvalue.AddN(operands...)
	case "Subtraction":
		return encvalue.SubN(operands...)
	case "Multiplication":
		return encvalue.MulN(operands...)
	case "AdditionConst":
		c, err := encvalue.NewConstant(bundle, *constant)
		if err != nil {
			return nil, err
		}
		return encvalue.Add(operands[0], c)
	case "SubtractionVarConst":
		c, err := encvalue.NewConstant(bundle, *constant)
		if err != nil {
			return nil, err
		}
		return encvalue.Sub(operands[0], c)
	case "MultiplicationConst":
		c, err := encvalue.NewConstant(bundle, *constant)
		if err != nil {
			return nil, err
		}
		return encvalue.Mul(operands[0], c)
	case "DivisionVarConst":
		if *constant == 0 {
			return nil, fmt.Errorf("%w: DivisionVarConst: division by zero constant", encvalue.ErrOffload)
		}
		c, err := encvalue.NewConstant(bundle, 1/(*constant))
		if err != nil {
			return nil, err
		}
		return encvalue.Mul(operands[0], c)
	case "PowerConst":
		return encvalue.PowConst(operands[0], *constant)
	case "AdditionOverN":
		return encvalue.SumOverN(operands[0])
	case "DefConst":
		return encvalue.NewConstant(bundle, *constant)
	default:
		return nil, fmt.Errorf("%w: %s is not evaluated locally under encryption", encvalue.ErrOffload, op)
	}
}
