// natives.go — the numeric core exposed to evaluation scripts.
package calcscript

import (
	"fmt"
	"math"
)

func numArg(args []Value, i int) (float64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing argument %d", i+1)
	}
	if args[i].Tag != VTNum {
		return 0, fmt.Errorf("argument %d must be a number", i+1)
	}
	return args[i].Data.(float64), nil
}

func registerCoreNatives(m *Machine) {
	unary := func(name string, fn func(float64) float64) {
		m.RegisterNative(name, func(args []Value) (Value, error) {
			x, err := numArg(args, 0)
			if err != nil {
				return Value{}, err
			}
			return Num(fn(x)), nil
		})
	}
	unary("abs", math.Abs)
	unary("floor", math.Floor)
	unary("round", math.Round)
	unary("sqrt", math.Sqrt)

	m.RegisterNative("pow", func(args []Value) (Value, error) {
		x, err := numArg(args, 0)
		if err != nil {
			return Value{}, err
		}
		y, err := numArg(args, 1)
		if err != nil {
			return Value{}, err
		}
		return Num(math.Pow(x, y)), nil
	})

	variadic := func(name string, pick func(a, b float64) float64) {
		m.RegisterNative(name, func(args []Value) (Value, error) {
			if len(args) == 0 {
				return Value{}, fmt.Errorf("expects at least one argument")
			}
			acc, err := numArg(args, 0)
			if err != nil {
				return Value{}, err
			}
			for i := 1; i < len(args); i++ {
				x, err := numArg(args, i)
				if err != nil {
					return Value{}, err
				}
				acc = pick(acc, x)
			}
			return Num(acc), nil
		})
	}
	variadic("min", math.Min)
	variadic("max", math.Max)

	m.RegisterNative("len", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return Value{}, fmt.Errorf("expects exactly one argument")
		}
		switch args[0].Tag {
		case VTStr:
			return Num(float64(len(args[0].Data.(string)))), nil
		case VTArray:
			return Num(float64(len(args[0].Data.(*ArrayObject).Elems))), nil
		case VTMap:
			return Num(float64(len(args[0].Data.(*MapObject).Keys))), nil
		default:
			return Value{}, fmt.Errorf("expects a string, array or object")
		}
	})

	m.RegisterNative("push", func(args []Value) (Value, error) {
		if len(args) != 2 || args[0].Tag != VTArray {
			return Value{}, fmt.Errorf("expects an array and a value")
		}
		a := args[0].Data.(*ArrayObject)
		a.Elems = append(a.Elems, args[1])
		return Num(float64(len(a.Elems))), nil
	})
}
